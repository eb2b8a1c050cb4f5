package dispatch

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1ureka/zynqctl/internal/protocol"
	"github.com/1ureka/zynqctl/internal/transport"
)

type call struct {
	op                    string
	target, command, info int
	path                  string
	data                  []byte
}

type fakeLink struct {
	calls []call
	err   error
	peer  *transport.PeerInfo
	size  int
}

func (f *fakeLink) SendCommand(target, command, info int) error {
	if _, err := protocol.Encode(target, command, info); err != nil {
		return err
	}
	f.calls = append(f.calls, call{op: "command", target: target, command: command, info: info})
	return f.err
}

func (f *fakeLink) SendFile(path string, info int) error {
	f.calls = append(f.calls, call{op: "file", path: path, info: info})
	return f.err
}

func (f *fakeLink) SendRaw(data []byte) error {
	f.calls = append(f.calls, call{op: "raw", data: append([]byte(nil), data...)})
	return f.err
}

func (f *fakeLink) RequestIdentification() error {
	f.calls = append(f.calls, call{op: "id"})
	return f.err
}

func (f *fakeLink) Peer() (transport.PeerInfo, bool) {
	if f.peer == nil {
		return transport.PeerInfo{}, false
	}
	return *f.peer, true
}

func (f *fakeLink) BufferSize() int {
	if f.size == 0 {
		return 512
	}
	return f.size
}

func TestDispatchCommands(t *testing.T) {
	testCases := []struct {
		line string
		want call
	}{
		{"status", call{op: "command", target: 1, command: 0, info: 0}},
		{"route 5", call{op: "command", target: 1, command: 1, info: 5}},
		{"rstfifo", call{op: "command", target: 1, command: 2, info: 0}},
		{"rstfpga", call{op: "command", target: 1, command: 2, info: 1}},
		{"rstptr 3", call{op: "command", target: 0, command: 2, info: 3}},
		{"rstptr all", call{op: "command", target: 0, command: 2, info: 8}},
		{"id", call{op: "id"}},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			link := &fakeLink{}
			res, ok := New(link, Options{}).DispatchLine(tc.line)
			if !ok || !res.OK {
				t.Fatalf("DispatchLine(%q) = %+v", tc.line, res)
			}
			if len(link.calls) != 1 {
				t.Fatalf("link saw %d calls, want 1", len(link.calls))
			}
			got := link.calls[0]
			if got.op != tc.want.op || got.target != tc.want.target || got.command != tc.want.command || got.info != tc.want.info {
				t.Fatalf("call = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDispatchValidation(t *testing.T) {
	testCases := []string{
		"rstptr 9",
		"rstptr -1",
		"rstptr",
		"route 8",
		"route x",
		"load 8 /tmp/a.bit",
		"load 1",
		"custom -b 10201",
		"custom -b",
		"custom",
	}

	for _, line := range testCases {
		t.Run(line, func(t *testing.T) {
			link := &fakeLink{}
			res, _ := New(link, Options{AllowRaw: true}).DispatchLine(line)
			if res.OK {
				t.Fatalf("DispatchLine(%q) succeeded: %+v", line, res)
			}
			if len(link.calls) != 0 {
				t.Fatalf("invalid command reached the link: %+v", link.calls)
			}
		})
	}
}

func TestDispatchUnknown(t *testing.T) {
	link := &fakeLink{}
	res := New(link, Options{}).Dispatch("reboot")
	if res.OK || !strings.Contains(res.Message, "unknown") {
		t.Fatalf("Dispatch(reboot) = %+v", res)
	}
	if len(link.calls) != 0 {
		t.Fatal("unknown command reached the link")
	}
}

func TestDispatchBlankLine(t *testing.T) {
	if _, ok := New(&fakeLink{}, Options{}).DispatchLine("   "); ok {
		t.Fatal("blank line was dispatched")
	}
}

func TestDispatchLinkError(t *testing.T) {
	link := &fakeLink{err: transport.ErrNotConnected}
	res := New(link, Options{}).Dispatch("status")
	if res.OK {
		t.Fatal("link error reported as success")
	}
	if !strings.Contains(res.Message, transport.ErrNotConnected.Error()) {
		t.Fatalf("message %q does not carry the cause", res.Message)
	}
}

func TestDispatchLoad(t *testing.T) {
	link := &fakeLink{}
	dir := t.TempDir()
	res := New(link, Options{}).Dispatch("load", "2", filepath.Join(dir, "top.bit"))
	if !res.OK {
		t.Fatalf("load failed: %s", res.Message)
	}
	got := link.calls[0]
	if got.op != "file" || got.info != 2 || got.path != filepath.Join(dir, "top.bit") {
		t.Fatalf("call = %+v", got)
	}
}

func TestDispatchCustom(t *testing.T) {
	link := &fakeLink{size: 4}
	d := New(link, Options{AllowRaw: true})

	if res := d.Dispatch("custom", "-b", "101"); !res.OK {
		t.Fatalf("custom -b failed: %s", res.Message)
	}
	if want := []byte{0b10100000, 0, 0, 0}; !bytes.Equal(link.calls[0].data, want) {
		t.Fatalf("bits sent %x, want %x", link.calls[0].data, want)
	}

	if res := d.Dispatch("custom", "hello", "board"); !res.OK {
		t.Fatalf("custom text failed: %s", res.Message)
	}
	if got := string(link.calls[1].data); got != "hello board" {
		t.Fatalf("text sent %q", got)
	}
}

func TestDispatchCustomDisabled(t *testing.T) {
	link := &fakeLink{}
	res := New(link, Options{AllowRaw: false}).Dispatch("custom", "x")
	if res.OK || !strings.Contains(res.Message, ErrRawDisabled.Error()) {
		t.Fatalf("custom with raw disabled = %+v", res)
	}
	if len(link.calls) != 0 {
		t.Fatal("disabled custom reached the link")
	}
}

func TestDispatchExitAndHelp(t *testing.T) {
	exited := false
	d := New(&fakeLink{}, Options{OnExit: func() { exited = true }})

	if res := d.Dispatch("exit"); !res.OK || !exited {
		t.Fatalf("exit = %+v, hook called %v", res, exited)
	}

	res := d.Dispatch("help")
	for _, name := range []string{"load", "rstptr", "custom", "exit"} {
		if !strings.Contains(res.Message, name) {
			t.Errorf("help is missing %s", name)
		}
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := New(nil, Options{})
	res := d.Dispatch("status")
	if res.OK {
		t.Fatal("nil link reported success")
	}
}

func TestPackBits(t *testing.T) {
	testCases := []struct {
		bits string
		size int
		want []byte
	}{
		{"1", 0, []byte{0x80}},
		{"11111111", 0, []byte{0xff}},
		{"000000011", 0, []byte{0x01, 0x80}},
		{"1", 3, []byte{0x80, 0, 0}},
		{"1010101010", 1, []byte{0xaa, 0x80}},
	}

	for _, tc := range testCases {
		got, err := PackBits(tc.bits, tc.size)
		if err != nil {
			t.Fatalf("PackBits(%q) error: %v", tc.bits, err)
		}
		if !bytes.Equal(got, tc.want) {
			t.Errorf("PackBits(%q, %d) = %x, want %x", tc.bits, tc.size, got, tc.want)
		}
	}

	if _, err := PackBits("12", 0); err == nil {
		t.Error("PackBits accepted a non-bit character")
	}
	if _, err := PackBits("", 0); err == nil {
		t.Error("PackBits accepted an empty string")
	}
}
