package local

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal stand-in for the local synthesis server's wire
// protocol: one JSON line in, either one JSON line out (commands) or a
// sequence of length-prefixed frames terminated by an empty frame
// (synthesize).
func fakeServer(t *testing.T, handle func(cmd command) (reply, [][]byte)) (host string, port int, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().(*net.TCPAddr)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func() {
				defer conn.Close()

				line, err := bufio.NewReader(conn).ReadBytes('\n')
				if err != nil {
					return
				}

				var cmd command

				_ = json.Unmarshal(line, &cmd)

				r, frames := handle(cmd)

				if frames != nil {
					for _, f := range frames {
						lenBuf := make([]byte, frameLenBytes)
						binary.BigEndian.PutUint32(lenBuf, uint32(len(f)))
						_, _ = conn.Write(lenBuf)
						_, _ = conn.Write(f)
					}

					endBuf := make([]byte, frameLenBytes)
					_, _ = conn.Write(endBuf)

					return
				}

				encoded, _ := json.Marshal(r)
				_, _ = conn.Write(append(encoded, '\n'))
			}()
		}
	}()

	return addr.IP.String(), addr.Port, func() { _ = ln.Close() }
}

func TestSendCommandRoundTrip(t *testing.T) {
	t.Parallel()

	host, port, stop := fakeServer(t, func(cmd command) (reply, [][]byte) {
		assert.Equal(t, "load_voice", cmd.Action)

		return reply{Status: "success", VoiceID: "tok-1"}, nil
	})
	defer stop()

	c := newClient(ServerConfig{Host: host, Port: port, Binary: "does-not-matter"}, nil)

	r, err := c.sendCommand(context.Background(), command{Action: "load_voice", VoicePath: "/tmp/x.wav"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", r.VoiceID)
}

func TestSendCommandServerError(t *testing.T) {
	t.Parallel()

	host, port, stop := fakeServer(t, func(cmd command) (reply, [][]byte) {
		return reply{Status: "error", Error: "boom"}, nil
	})
	defer stop()

	c := newClient(ServerConfig{Host: host, Port: port, Binary: "does-not-matter"}, nil)

	_, err := c.sendCommand(context.Background(), command{Action: "unload_voice", VoiceID: "tok-1"})
	require.Error(t, err)
}

func TestSendSynthesizeStreamsFrames(t *testing.T) {
	t.Parallel()

	host, port, stop := fakeServer(t, func(cmd command) (reply, [][]byte) {
		return reply{}, [][]byte{[]byte("chunk1"), []byte("chunk2")}
	})
	defer stop()

	c := newClient(ServerConfig{Host: host, Port: port, Binary: "does-not-matter"}, nil)

	var got []byte

	err := c.sendSynthesize(context.Background(), command{Action: "synthesize", Text: "hi"}, func(frame []byte) error {
		got = append(got, frame...)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "chunk1chunk2", string(got))
}

func TestEnsureRunningFailsWhenBinaryMissing(t *testing.T) {
	t.Parallel()

	c := newClient(ServerConfig{
		Host:                  "127.0.0.1",
		Port:                  1, // nothing listens here
		Binary:                "speakctl-definitely-not-a-real-binary",
		StartupTimeoutSeconds: 1,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := c.ensureRunning(ctx)
	require.Error(t, err)
}
