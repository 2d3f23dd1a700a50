// Command sync-server runs the reference-time server: it distributes a
// shared SyncRecord to every joined client over a control channel.
package main

import "github.com/ford-prefect/gst-sync-server/internal/cmd/syncserver"

func main() {
	syncserver.Execute()
}
