package benchmark

import (
	"bytes"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/encounter/pkg/router"
	"github.com/blockberries/encounter/pkg/transport/lan"
)

func BenchmarkFrame_WriteDelimited(b *testing.B) {
	frame := &lan.Frame{Type: uint32(lan.FrameData), Data: bytes.Repeat([]byte{0xAB}, 256)}
	var buf bytes.Buffer
	w := cramberry.NewStreamWriter(&buf)

	b.SetBytes(int64(len(frame.Data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := w.WriteDelimited(frame); err != nil {
			b.Fatal(err)
		}
		if err := w.Flush(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFrame_ReadDelimited(b *testing.B) {
	const frames = 64
	var buf bytes.Buffer
	w := cramberry.NewStreamWriter(&buf)
	for i := 0; i < frames; i++ {
		if err := w.WriteDelimited(&lan.Frame{Type: uint32(lan.FrameData), Data: bytes.Repeat([]byte{byte(i)}, 256)}); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		b.Fatal(err)
	}
	stream := buf.Bytes()

	b.SetBytes(int64(len(stream)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it := cramberry.NewMessageIterator(bytes.NewReader(stream))
		n := 0
		var f lan.Frame
		for it.Next(&f) {
			if err := f.Validate(lan.DefaultMaxFrameData); err != nil {
				b.Fatal(err)
			}
			n++
		}
		if n != frames {
			b.Fatalf("read %d frames, want %d", n, frames)
		}
	}
}

func BenchmarkRouterParse(b *testing.B) {
	inputs := map[string]string{
		"user":      "see you by the fountain",
		"act":       router.FormatActChange(3),
		"meetup":    router.FormatMeetupDesc("north gate", "red scarf", "s-1"),
		"resonance": router.FormatResonanceScores(router.Resonance{Presence: 4, Courage: 3, Mirror: 5}),
		"unknown":   router.SystemPrefix + "SOMETHING_NEW:payload",
	}
	for name, in := range inputs {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = router.Parse(in)
			}
		})
	}
}
