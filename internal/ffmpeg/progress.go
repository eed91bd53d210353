package ffmpeg

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Progress is one block of ffmpeg -progress output.
type Progress struct {
	Frame           int64
	FPS             float64
	Speed           float64
	OutTime         time.Duration
	TotalSize       int64
	DroppedFrames   int64
	DuplicateFrames int64
	Done            bool
}

// ProgressParser collects key=value lines from stdout and reports a Progress
// each time ffmpeg closes a block with progress=continue|end.
type ProgressParser struct {
	mu         sync.Mutex
	block      map[string]string
	onProgress func(Progress)
}

// NewProgressParser returns a parser that calls fn for every block.
func NewProgressParser(fn func(Progress)) *ProgressParser {
	return &ProgressParser{block: make(map[string]string), onProgress: fn}
}

// HandleLine consumes one output line. Only stdout carries progress.
func (p *ProgressParser) HandleLine(source, line string) {
	if source != "stdout" {
		return
	}
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)

	p.mu.Lock()
	p.block[key] = value
	if key != "progress" {
		p.mu.Unlock()
		return
	}
	block := p.block
	p.block = make(map[string]string)
	p.mu.Unlock()

	if p.onProgress != nil {
		p.onProgress(progressFromBlock(block))
	}
}

func progressFromBlock(block map[string]string) Progress {
	var pr Progress
	pr.Frame, _ = strconv.ParseInt(block["frame"], 10, 64)
	pr.FPS, _ = strconv.ParseFloat(block["fps"], 64)
	pr.TotalSize, _ = strconv.ParseInt(block["total_size"], 10, 64)
	pr.DroppedFrames, _ = strconv.ParseInt(block["drop_frames"], 10, 64)
	pr.DuplicateFrames, _ = strconv.ParseInt(block["dup_frames"], 10, 64)
	if us, err := strconv.ParseInt(block["out_time_us"], 10, 64); err == nil {
		pr.OutTime = time.Duration(us) * time.Microsecond
	}
	if speed := strings.TrimSuffix(block["speed"], "x"); speed != "" {
		pr.Speed, _ = strconv.ParseFloat(strings.TrimSpace(speed), 64)
	}
	pr.Done = block["progress"] == "end"
	return pr
}
