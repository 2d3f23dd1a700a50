// Command sync-client joins a gst-sync-server and disciplines a local
// GStreamer playback pipeline to its reference time.
package main

import "github.com/ford-prefect/gst-sync-server/internal/cmd/syncclient"

func main() {
	syncclient.Execute()
}
