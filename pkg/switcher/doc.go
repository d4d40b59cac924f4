/*
Package switcher keeps the managed surface pointed at the current target.

The Executor only ever reads or navigates the surface whose id is bound in
settings. When auto-switch is enabled without a binding it adopts the host's
default surface once and persists the id; when the bound surface is gone it
clears auto-switch and the binding in one settings update.

Every navigation, including fallback redirects, goes through Redirect, which
re-reads the latest settings and skips the redirect if the binding changed
while the cycle was waiting on I/O.

With prompt-before-switch on, a confirmation is raised through host.Prompter
and the redirect waits for Answer. Declining snoozes that surface and channel
pair for the configured cooldown.
*/
package switcher
