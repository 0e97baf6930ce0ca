package ndjson_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/ndjson"
)

// splitAll feeds chunks through a fresh Splitter and collects every line.
func splitAll(chunks ...[]byte) ([]string, *ndjson.Splitter) {
	s := ndjson.NewSplitter()
	var lines []string
	for _, c := range chunks {
		got, err := s.Write(c)
		Expect(err).NotTo(HaveOccurred())
		lines = append(lines, got...)
	}
	return lines, s
}

var _ = Describe("Decoder", func() {
	It("passes ASCII through unchanged", func() {
		var d ndjson.Decoder
		Expect(d.Decode([]byte("hello"))).To(Equal("hello"))
		Expect(d.Pending()).To(Equal(0))
	})

	It("holds back a split two-byte sequence", func() {
		var d ndjson.Decoder
		b := []byte("héllo")

		Expect(d.Decode(b[:2])).To(Equal("h"))
		Expect(d.Pending()).To(Equal(1))
		Expect(d.Decode(b[2:])).To(Equal("éllo"))
		Expect(d.Pending()).To(Equal(0))
	})

	It("reassembles a four-byte sequence delivered one byte at a time", func() {
		var d ndjson.Decoder
		b := []byte("😀")

		var out strings.Builder
		for i := range b {
			out.WriteString(d.Decode(b[i : i+1]))
		}
		Expect(out.String()).To(Equal("😀"))
	})

	It("replaces invalid bytes with the replacement character", func() {
		var d ndjson.Decoder
		Expect(d.Decode([]byte{'a', 0xff, 'b'})).To(Equal("a�b"))
		Expect(d.Pending()).To(Equal(0))
	})

	It("does not hold back a stray continuation byte", func() {
		var d ndjson.Decoder
		Expect(d.Decode([]byte{'a', 0x80})).To(Equal("a�"))
		Expect(d.Pending()).To(Equal(0))
	})

	It("drops retained bytes on Reset", func() {
		var d ndjson.Decoder
		b := []byte("€")
		d.Decode(b[:1])
		Expect(d.Pending()).To(Equal(1))

		d.Reset()
		Expect(d.Pending()).To(Equal(0))
		Expect(d.Decode([]byte("x"))).To(Equal("x"))
	})
})

var _ = Describe("Splitter", func() {
	Describe("Write", func() {
		It("returns complete lines and keeps the tail", func() {
			lines, s := splitAll([]byte("one\ntwo\nthr"))
			Expect(lines).To(Equal([]string{"one", "two"}))
			Expect(s.Buffered()).To(Equal("thr"))
		})

		It("completes a line split across chunks", func() {
			lines, s := splitAll([]byte(`{"ty`), []byte(`pe":"token"}`+"\n"))
			Expect(lines).To(Equal([]string{`{"type":"token"}`}))
			Expect(s.Buffered()).To(BeEmpty())
		})

		It("returns blank lines verbatim", func() {
			lines, _ := splitAll([]byte("a\n\n\nb\n"))
			Expect(lines).To(Equal([]string{"a", "", "", "b"}))
		})

		It("keeps carriage returns for the caller to trim", func() {
			lines, _ := splitAll([]byte("a\r\nb\r\n"))
			Expect(lines).To(Equal([]string{"a\r", "b\r"}))
		})

		It("returns nothing for a chunk without a newline", func() {
			s := ndjson.NewSplitter()
			lines, err := s.Write([]byte("partial"))
			Expect(err).NotTo(HaveOccurred())
			Expect(lines).To(BeEmpty())
			Expect(s.Buffered()).To(Equal("partial"))
		})

		It("never returns an unterminated tail", func() {
			lines, s := splitAll([]byte("done\nleft over"))
			Expect(lines).To(Equal([]string{"done"}))
			Expect(s.Buffered()).To(Equal("left over"))
		})

		It("handles a multibyte character split across the newline chunk", func() {
			b := []byte("caf€\nok\n")
			// Split inside the three-byte euro sign.
			lines, _ := splitAll(b[:4], b[4:])
			Expect(lines).To(Equal([]string{"caf€", "ok"}))
		})

		It("produces the same lines for every two-way split", func() {
			input := []byte("{\"type\":\"thought\",\"content\":\"pensée…\"}\n\n{\"type\":\"token\",\"content\":\"😀\"}\nrest")
			whole, _ := splitAll(input)

			for i := range len(input) + 1 {
				got, _ := splitAll(input[:i], input[i:])
				Expect(got).To(Equal(whole), "split at byte %d", i)
			}
		})

		It("produces the same lines when fed one byte at a time", func() {
			input := []byte("α\nβγ\n\n{\"content\":\"日本語\"}\n")
			whole, _ := splitAll(input)

			chunks := make([][]byte, 0, len(input))
			for i := range input {
				chunks = append(chunks, input[i:i+1])
			}
			got, _ := splitAll(chunks...)
			Expect(got).To(Equal(whole))
		})
	})

	Describe("WithMaxLineSize", func() {
		It("reports a tail that exceeds the cap", func() {
			s := ndjson.NewSplitter(ndjson.WithMaxLineSize(8))
			_, err := s.Write([]byte("0123456789"))
			Expect(err).To(MatchError(ndjson.ErrLineTooLong))
			Expect(s.Buffered()).To(BeEmpty())
			Expect(s.Skipped()).To(Equal(1))
		})

		It("still returns completed lines alongside the error", func() {
			s := ndjson.NewSplitter(ndjson.WithMaxLineSize(4))
			lines, err := s.Write([]byte("ok\n0123456789"))
			Expect(err).To(MatchError(ndjson.ErrLineTooLong))
			Expect(lines).To(Equal([]string{"ok"}))
		})

		It("resumes after the newline that ends an oversized line", func() {
			s := ndjson.NewSplitter(ndjson.WithMaxLineSize(4))
			lines, err := s.Write([]byte("a\n0123456"))
			Expect(err).To(MatchError(ndjson.ErrLineTooLong))
			Expect(lines).To(Equal([]string{"a"}))

			lines, err = s.Write([]byte("789"))
			Expect(err).NotTo(HaveOccurred())
			Expect(lines).To(BeEmpty())

			lines, err = s.Write([]byte("xyz\nb\nc"))
			Expect(err).NotTo(HaveOccurred())
			Expect(lines).To(Equal([]string{"b"}))
			Expect(s.Buffered()).To(Equal("c"))
			Expect(s.Skipped()).To(Equal(1))
		})

		It("drops a complete oversized line delivered in one chunk", func() {
			s := ndjson.NewSplitter(ndjson.WithMaxLineSize(4))
			lines, err := s.Write([]byte("a\n0123456789\nb\n"))
			Expect(err).To(MatchError(ndjson.ErrLineTooLong))
			Expect(lines).To(Equal([]string{"a", "b"}))
		})

		It("allows long lines when the cap is disabled", func() {
			s := ndjson.NewSplitter(ndjson.WithMaxLineSize(0))
			lines, err := s.Write([]byte(strings.Repeat("x", 4096) + "\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(lines).To(HaveLen(1))
		})
	})

	Describe("Reset", func() {
		It("clears the buffered tail", func() {
			s := ndjson.NewSplitter()
			_, err := s.Write([]byte("abc"))
			Expect(err).NotTo(HaveOccurred())

			s.Reset()
			Expect(s.Buffered()).To(BeEmpty())
			Expect(s.Pending()).To(Equal(0))
		})
	})
})
