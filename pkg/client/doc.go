/*
Package client provides a Go client for the warden control API.

The client wraps the HTTP routes served by pkg/api with typed methods, one per
route, each bounded by its own timeout. The CLI uses it for every command
except run:

	c, err := client.NewClient("127.0.0.1:7878")
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := c.Status()

Non-2xx answers come back as *APIError carrying the status code and the
server's error message. Force commands also decode the action body on
failure, so a caller can tell a refused request from a cycle that ran and
failed.
*/
package client
