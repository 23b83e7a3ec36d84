package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"

	"fvrip/internal/config"
	"fvrip/internal/manifest"
	"fvrip/internal/services"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeBMP(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	return buf.Bytes()
}

// fakeExecutor mimics the decompiler by dropping prepared frame files into
// the export directory named in the command line.
type fakeExecutor struct {
	frames map[string][]byte
	err    error
	binary string
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onStdout func(string)) error {
	f.binary = binary
	f.args = args
	if f.err != nil {
		if onStdout != nil {
			onStdout("Error: cannot read SWF")
		}
		return f.err
	}
	if len(args) < 2 {
		return errors.New("missing export arguments")
	}
	outDir := args[len(args)-2]
	for name, data := range f.frames {
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func testRendererConfig() config.Renderer {
	return config.Renderer{Binary: "ffdec", Timeout: 30, ExportFormat: "png"}
}

func TestFFDecRendersFirstFrame(t *testing.T) {
	first := encodePNG(t, 3, 3)
	second := encodePNG(t, 5, 5)
	exec := &fakeExecutor{frames: map[string][]byte{"2.png": second, "1.png": first}}

	client, err := NewFFDec(testRendererConfig(), WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewFFDec() error = %v", err)
	}
	result, err := client.Render(context.Background(), manifest.ContentTypeFlash, []byte("FWS"))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if result.Format != "png" {
		t.Fatalf("Format = %q", result.Format)
	}
	if !bytes.Equal(result.Data, first) {
		t.Fatal("Render() returned a frame other than the lowest-numbered one")
	}
}

func TestFFDecCommandLine(t *testing.T) {
	exec := &fakeExecutor{frames: map[string][]byte{"1.png": encodePNG(t, 1, 1)}}
	client, err := NewFFDec(testRendererConfig(), WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewFFDec() error = %v", err)
	}
	if _, err := client.Render(context.Background(), manifest.ContentTypeFlash, []byte("FWS")); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if exec.binary != "ffdec" {
		t.Fatalf("binary = %q", exec.binary)
	}
	want := []string{"-cli", "-format", "frame:png", "-export", "frame"}
	if len(exec.args) != len(want)+2 {
		t.Fatalf("args = %v", exec.args)
	}
	for i, arg := range want {
		if exec.args[i] != arg {
			t.Fatalf("args[%d] = %q, want %q", i, exec.args[i], arg)
		}
	}
}

func TestFFDecJavaWrapper(t *testing.T) {
	exec := &fakeExecutor{frames: map[string][]byte{"1.png": encodePNG(t, 1, 1)}}
	cfg := testRendererConfig()
	cfg.Binary = "/opt/ffdec/ffdec.jar"
	cfg.Java = "java"
	cfg.JVMOptions = []string{"-Xmx1g", "-Djava.awt.headless=true"}

	client, err := NewFFDec(cfg, WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewFFDec() error = %v", err)
	}
	if _, err := client.Render(context.Background(), manifest.ContentTypeFlash, []byte("FWS")); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if exec.binary != "java" {
		t.Fatalf("binary = %q", exec.binary)
	}
	prefix := []string{"-Xmx1g", "-Djava.awt.headless=true", "-jar", "/opt/ffdec/ffdec.jar", "-cli"}
	for i, arg := range prefix {
		if exec.args[i] != arg {
			t.Fatalf("args[%d] = %q, want %q", i, exec.args[i], arg)
		}
	}
}

func TestFFDecFailures(t *testing.T) {
	tests := []struct {
		name string
		exec *fakeExecutor
	}{
		{"decompiler error", &fakeExecutor{err: errors.New("exit status 1")}},
		{"no frames", &fakeExecutor{frames: map[string][]byte{}}},
		{"corrupt frame", &fakeExecutor{frames: map[string][]byte{"1.png": []byte("not a png")}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewFFDec(testRendererConfig(), WithExecutor(tc.exec))
			if err != nil {
				t.Fatalf("NewFFDec() error = %v", err)
			}
			_, err = client.Render(context.Background(), manifest.ContentTypeFlash, []byte("FWS"))
			if !errors.Is(err, services.ErrRenderFailed) {
				t.Fatalf("Render() error = %v, want ErrRenderFailed", err)
			}
		})
	}
}

func TestFFDecRequiresBinary(t *testing.T) {
	_, err := NewFFDec(config.Renderer{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("NewFFDec() error = %v, want ErrConfiguration", err)
	}
}

func TestRasterPassthrough(t *testing.T) {
	payload := encodePNG(t, 4, 4)
	result, err := NewRaster().Render(context.Background(), manifest.ContentTypePage, payload)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if result.Format != "png" {
		t.Fatalf("Format = %q", result.Format)
	}
	if !bytes.Equal(result.Data, payload) {
		t.Fatal("Render() modified a raster payload")
	}
}

func TestRasterDecodesBMP(t *testing.T) {
	result, err := NewRaster().Render(context.Background(), manifest.ContentTypePage, encodeBMP(t))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if result.Format != "bmp" {
		t.Fatalf("Format = %q", result.Format)
	}
}

func TestRasterRejectsGarbage(t *testing.T) {
	_, err := NewRaster().Render(context.Background(), manifest.ContentTypePage, []byte{0x00, 0x01, 0x02})
	if !errors.Is(err, services.ErrRenderFailed) {
		t.Fatalf("Render() error = %v, want ErrRenderFailed", err)
	}
}

func TestDispatcherRoutes(t *testing.T) {
	payload := encodePNG(t, 2, 2)
	exec := &fakeExecutor{frames: map[string][]byte{"1.png": payload}}
	flash, err := NewFFDec(testRendererConfig(), WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewFFDec() error = %v", err)
	}
	dispatcher := NewDispatcher(flash, NewRaster())

	if _, err := dispatcher.Render(context.Background(), manifest.ContentTypeFlash, []byte("FWS")); err != nil {
		t.Fatalf("flash dispatch error = %v", err)
	}
	if _, err := dispatcher.Render(context.Background(), manifest.ContentTypePage, payload); err != nil {
		t.Fatalf("raster dispatch error = %v", err)
	}
	if _, err := dispatcher.Render(context.Background(), "text/plain", nil); !errors.Is(err, services.ErrRenderFailed) {
		t.Fatalf("unsupported dispatch error = %v, want ErrRenderFailed", err)
	}
}
