/*
Package events provides an in-memory event broker for warden status changes.

The engine publishes an event whenever the published summary changes, a
tracked channel goes live or offline, the managed surface is redirected, a
confirmation prompt is raised or fallback starts and ends. The control API
streams these to the overlay companion over server-sent events.

Publishing is asynchronous: events go through a buffered channel (100) to a
broadcast loop that delivers to each subscriber's buffered channel (50).
A subscriber whose buffer is full misses the event rather than blocking the
engine.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.Message)
	}

Events without an ID get a random UUID on Publish.
*/
package events
