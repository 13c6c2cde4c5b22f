package ipsec

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/hapcore/hap/internal/session"
)

// pairedContexts builds the two SecurityContext views of one verified
// session: ctx encrypts with the accessory-to-controller key and
// decrypts with the controller-to-accessory key, peer is the mirror
// image, exactly as internal/session.Session hands out matching
// directional keys to both ends of a Pair Verify.
func pairedContexts() (ctx, peer *session.SecurityContext) {
	var controllerToAccessory, accessoryToController [32]byte
	for i := range controllerToAccessory {
		controllerToAccessory[i] = byte(i)
	}
	for i := range accessoryToController {
		accessoryToController[i] = byte(i + 128)
	}
	ctx = session.NewSecurityContext(controllerToAccessory, accessoryToController)
	peer = session.NewSecurityContext(accessoryToController, controllerToAccessory)
	return ctx, peer
}

func TestConnWriteReadRoundTrip(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	serverCtx, clientCtx := pairedContexts()
	server := NewConn(serverSide, serverCtx)
	client := NewConn(clientSide, clientCtx)

	message := []byte("GET /accessories HTTP/1.1\r\nHost: hap\r\n\r\n")
	errc := make(chan error, 1)
	go func() {
		_, err := server.Write(message)
		errc <- err
	}()

	buf := make([]byte, len(message))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("client Read: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("server Write: %v", err)
	}
	if !bytes.Equal(buf, message) {
		t.Errorf("client read = %q, want %q", buf, message)
	}
}

func TestConnLargeWriteSpansMultipleFrames(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	serverCtx, clientCtx := pairedContexts()
	server := NewConn(serverSide, serverCtx)
	client := NewConn(clientSide, clientCtx)

	message := bytes.Repeat([]byte("x"), MaxFrameBytes*2+17)
	errc := make(chan error, 1)
	go func() {
		_, err := server.Write(message)
		errc <- err
	}()

	buf := make([]byte, len(message))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("client Read: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("server Write: %v", err)
	}
	if !bytes.Equal(buf, message) {
		t.Error("reassembled message across frame boundaries does not match")
	}
}

func TestConnRoundTripBothDirections(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	serverCtx, clientCtx := pairedContexts()
	server := NewConn(serverSide, serverCtx)
	client := NewConn(clientSide, clientCtx)

	request := []byte("PUT /characteristics HTTP/1.1\r\n\r\n")
	response := []byte("HTTP/1.1 204 No Content\r\n\r\n")

	go func() {
		buf := make([]byte, len(request))
		io.ReadFull(server, buf)
		server.Write(response)
	}()

	if _, err := client.Write(request); err != nil {
		t.Fatalf("client Write: %v", err)
	}
	buf := make([]byte, len(response))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("client Read: %v", err)
	}
	if !bytes.Equal(buf, response) {
		t.Errorf("client read response = %q, want %q", buf, response)
	}
}
