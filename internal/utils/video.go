package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/andresmejia3/benthic/internal/types"
)

// --- 2. Video Probing ---

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// ProbeVideo reads fps, resolution and frame count of the first video stream.
// A missing frame count is not an error; TotalFrames is then 0.
func ProbeVideo(ctx context.Context, path string) (types.VideoInfo, error) {
	var info types.VideoInfo
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return info, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := NewSafeCommand(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(cmd.Stderr.String()); msg != "" {
			return info, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return info, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err = parseProbe(out)
	if err != nil {
		return info, err
	}
	info.Filename = filepath.Base(path)
	if info.TotalFrames <= 0 {
		info.TotalFrames = GetTotalFrames(ctx, path)
	}
	return info, nil
}

func parseProbe(out []byte) (types.VideoInfo, error) {
	var info types.VideoInfo
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return info, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return info, fmt.Errorf("no video stream found")
	}
	s := res.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return info, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}

	fps, err := parseRate(s.RFrameRate)
	if err != nil || fps <= 0 {
		fps, err = parseRate(s.AvgFrameRate)
	}
	if err != nil {
		return info, err
	}
	if fps <= 0 {
		return info, fmt.Errorf("invalid frame rate %q", s.RFrameRate)
	}

	info.FPS = fps
	info.Resolution.Width = s.Width
	info.Resolution.Height = s.Height
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.TotalFrames = n
	}
	return info, nil
}

// parseRate converts an ffprobe rational such as "30000/1001" into a float.
func parseRate(rate string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}

// GetTotalFrames counts packets for the progress bar.
// It returns 0 if the count fails, allowing the caller to fall back to a spinner.
func GetTotalFrames(ctx context.Context, path string) int {
	fmt.Fprintf(os.Stderr, "⏳ Metadata missing. Counting frames (this may take a moment)...\n")
	cmd := NewSafeCommand(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  ffprobe packet count failed: %v\n", err)
		return 0
	}

	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil || len(res.Streams) == 0 {
		return 0
	}
	count, err := strconv.Atoi(res.Streams[0].NbReadPackets)
	if err != nil {
		return 0
	}
	return count
}

// --- 3. Raw Frame Streams ---

// Buffer pool to reduce GC pressure while streaming frames
var frameBufferPool = sync.Pool{
	New: func() interface{} { return []byte(nil) },
}

// FrameReader splits a raw bgr24 byte stream into frames of a fixed size.
type FrameReader struct {
	r      io.Reader
	width  int
	height int
	next   int
	done   bool
}

func NewFrameReader(r io.Reader, width, height int) *FrameReader {
	return &FrameReader{r: r, width: width, height: height}
}

// Next returns the next frame or io.EOF once the stream is exhausted. A
// truncated last frame is returned once with Err set so it is still counted.
func (fr *FrameReader) Next(ctx context.Context) (types.Frame, error) {
	if fr.done {
		return types.Frame{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}

	size := fr.width * fr.height * 3
	buf := frameBufferPool.Get().([]byte)
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]

	f := types.Frame{Index: fr.next, Width: fr.width, Height: fr.height, Data: buf}
	n, err := io.ReadFull(fr.r, buf)
	switch {
	case err == io.EOF:
		fr.done = true
		frameBufferPool.Put(buf[:0])
		return types.Frame{}, io.EOF
	case err == io.ErrUnexpectedEOF:
		fr.done = true
		f.Err = fmt.Errorf("short frame: got %d of %d bytes", n, size)
	case err != nil:
		return types.Frame{}, err
	}
	fr.next++
	return f, nil
}

// Recycle hands a frame buffer back once nothing references it anymore.
func (fr *FrameReader) Recycle(f types.Frame) {
	if f.Data != nil {
		frameBufferPool.Put(f.Data[:0])
	}
}

// RawDecoder runs ffmpeg to decode a video into bgr24 frames.
type RawDecoder struct {
	*FrameReader
	Cmd *SafeCommand
	out io.ReadCloser
}

// NewRawDecoder starts the decoder. The process is killed if ctx is cancelled.
func NewRawDecoder(ctx context.Context, path string, width, height int) (*RawDecoder, error) {
	cmd := NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", path, "-f", "rawvideo", "-pix_fmt", "bgr24", "-")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}
	return &RawDecoder{
		FrameReader: NewFrameReader(out, width, height),
		Cmd:         cmd,
		out:         out,
	}, nil
}

// Close stops reading and waits for ffmpeg to exit.
func (d *RawDecoder) Close() error {
	d.out.Close()
	if err := d.Cmd.Wait(); err != nil {
		return fmt.Errorf("decoder exited: %w", err)
	}
	return nil
}

// RawEncoder pipes bgr24 frames into ffmpeg, producing an H.264 file.
type RawEncoder struct {
	Cmd *SafeCommand
	in  io.WriteCloser
}

// NewRawEncoder starts the encoder. Cancelling ctx does not kill it; Close
// finalises the output file.
func NewRawEncoder(ctx context.Context, path string, fps float64, width, height int) (*RawEncoder, error) {
	cmd := NewSafeCommand(context.WithoutCancel(ctx), "ffmpeg", "-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", path)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &RawEncoder{Cmd: cmd, in: in}, nil
}

func (e *RawEncoder) Write(f types.Frame) error {
	_, err := e.in.Write(f.Data)
	return err
}

// Close flushes the remaining frames and waits for ffmpeg to finish the file.
func (e *RawEncoder) Close() error {
	if err := e.in.Close(); err != nil {
		return fmt.Errorf("close encoder input: %w", err)
	}
	if err := e.Cmd.Wait(); err != nil {
		return fmt.Errorf("encoder exited: %w", err)
	}
	return nil
}
