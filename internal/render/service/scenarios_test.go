package service

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/edgecomet/pagerender/pkg/types"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0xff, 0x00}

var _ = Describe("Render endpoints", func() {
	var (
		engine *fakeEngine
		ts     *testServer
	)

	start := func(behavior renderBehavior) {
		engine = newFakeEngine(behavior)
		var err error
		ts, err = newTestServer(engine, zap.NewNop())
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			Expect(ts.close()).To(Succeed())
		})
	}

	Context("when the engine renders quickly", func() {
		It("answers /render.html with the engine output", func() {
			start(respondWith([]byte("<html><body>hello</body></html>")))

			resp, err := ts.get("/render.html?url=http://example.test")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.status).To(Equal(200))
			Expect(resp.contentType).To(Equal(types.ContentTypeHTML))
			Expect(string(resp.body)).To(Equal("<html><body>hello</body></html>"))

			By("emitting exactly one stats record")
			Expect(ts.sink.all()).To(HaveLen(1))
			Expect(ts.sink.all()[0].Path).To(Equal("/render.html"))
		})

		It("answers /render.png with a binary body and the requested viewport", func() {
			start(respondWith(pngBytes))

			resp, err := ts.get("/render.png?url=http://example.test&width=100&height=50")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.status).To(Equal(200))
			Expect(resp.contentType).To(Equal(types.ContentTypePNG))
			Expect(bytes.Equal(resp.body, pngBytes)).To(BeTrue())

			calls := engine.calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Width).To(Equal(100))
			Expect(calls[0].Height).To(Equal(50))
			Expect(calls[0].Output).To(Equal(types.OutputPNG))
		})
	})

	Context("when the engine is slower than the timeout", func() {
		It("answers 504 and cancels the render", func() {
			start(slowRender(5*time.Second, []byte("too late")))

			began := time.Now()
			resp, err := ts.get("/render.html?url=http://example.test&timeout=0.01")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.status).To(Equal(504))
			Expect(string(resp.body)).To(Equal("Timeout exceeded rendering page\n"))
			Expect(time.Since(began)).To(BeNumerically("<", 2*time.Second))

			Eventually(engine.cancellations).Should(Equal(1))
			Expect(ts.sink.all()).To(BeEmpty())
		})
	})

	Context("when the url argument is missing", func() {
		It("answers 400 without starting a render", func() {
			start(respondWith([]byte("unused")))

			resp, err := ts.get("/render.html")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.status).To(Equal(400))
			Expect(string(resp.body)).To(Equal("Missing argument: url\n"))
			Expect(engine.calls()).To(BeEmpty())
			Expect(ts.sink.all()).To(BeEmpty())
			Expect(ts.scheduler.Stats().Dispatched).To(BeZero())
		})
	})

	Context("when the engine fails unexpectedly", func() {
		It("answers 500 echoing the failure message", func() {
			start(failWith(errors.New("renderer state corrupted")))

			resp, err := ts.get("/render.html?url=http://example.test")
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.status).To(Equal(500))
			Expect(string(resp.body)).To(Equal("renderer state corrupted"))
			Expect(ts.sink.all()).To(BeEmpty())
		})
	})
})
