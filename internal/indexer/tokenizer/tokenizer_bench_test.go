package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"title": "Understanding Kubernetes Networking Fundamentals",
	"excerpt": `A practical walkthrough of cluster networking, service discovery
        and ingress controllers, with examples you can run on a laptop.`,
	"content": strings.Repeat(`<p>Kubernetes schedules <strong>pods</strong> onto nodes and
        wires them together with a flat network. Services give a stable virtual address
        to a changing set of endpoints, while ingress resources route external traffic.
        <a href="/tags/networking">Read more</a></p>`, 20),
}

func BenchmarkWords(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Words(text, 2)
			}
		})
	}
}

func BenchmarkPhoneticCodes(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = PhoneticCodes(text)
			}
		})
	}
}

func BenchmarkMetaphone(b *testing.B) {
	words := []string{
		"kubernetes", "networking", "sourdough", "philosophy",
		"knight", "thompson", "schedule", "xylophone",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = Metaphone(w)
		}
	}
}

func BenchmarkStripMarkup(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	base := "<p>kubernetes <em>pods</em> and services</p>"
	for _, size := range sizes {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = StripMarkup(text)
			}
		})
	}
}
