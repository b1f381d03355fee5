// Package handshake relays the backend credential from a host application
// into an embedded dashboard frame.
//
// The two sides talk over a Port: an in-memory Pipe when both live in one
// process, or a WSPort when the frame connects over a WebSocket. Every
// message is a small JSON object with a type field:
//
//	{"type":"auth","accessToken":"...","backendUrl":"http://ha:8123"}  host -> frame
//	{"type":"auth-request"}                                            frame -> host
//	{"type":"toggle-sidebar"}                                          frame -> host
//
// The host sends the credential 200ms after the frame's load event and again
// whenever the frame asks. The frame side (ConnectAsPanel) asks once and
// waits up to five seconds:
//
//	idle -> awaiting_credential -> resolved | rejected | timed_out
//
// Only the first terminal transition counts; the listener and timer are torn
// down exactly once and duplicate auth messages are ignored.
//
// No origin checks are performed. Bytes are only interpreted by ParseMessage.
package handshake
