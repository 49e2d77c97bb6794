package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// AudioInfo describes a probed audio file: the decoded track length and the
// tag metadata used to prefill a mapping's export fields.
type AudioInfo struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Duration float64 `json:"duration"`
	FileSize int64   `json:"fileSize"`
	FilePath string  `json:"-"`
}

// Prober reads duration and title/artist hints from audio files without
// decoding their samples.
type Prober struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewProber creates a prober for the given extensions (e.g. ".mp3").
func NewProber(supportedFormats []string) *Prober {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Prober{
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// IsSupported reports whether the file's extension is a probeable format.
func (p *Prober) IsSupported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range p.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// ProbeFile reads the header-level metadata of an audio file. A file whose
// tags cannot be read still probes successfully with the filename as title;
// a file whose duration cannot be determined probes with duration 0.
func (p *Prober) ProbeFile(filePath string) (AudioInfo, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Error("Failed to open audio file")
		return AudioInfo{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Error("Failed to get file stats")
		return AudioInfo{}, err
	}

	duration, err := p.probeDuration(filePath)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to determine duration, setting to 0")
		duration = 0
	}

	info := AudioInfo{
		Duration: duration,
		FileSize: stat.Size(),
		FilePath: filePath,
	}

	meta, err := tag.ReadFrom(file)
	if err != nil {
		filename := filepath.Base(filePath)
		info.Title = strings.TrimSuffix(filename, filepath.Ext(filename))

		p.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to read tags, using filename")
		return info, nil
	}

	info.Title = meta.Title()
	if info.Title == "" {
		info.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	info.Artist = meta.Artist()

	p.logger.WithFields(logrus.Fields{
		"filePath":       filePath,
		"title":          info.Title,
		"artist":         info.Artist,
		"duration":       info.Duration,
		"processingTime": time.Since(startTime),
	}).Debug("Probed audio file")

	return info, nil
}

// probeDuration returns the track length in seconds.
func (p *Prober) probeDuration(filePath string) (float64, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return p.durationMP3(filePath)
	case ".flac":
		return p.durationFLAC(filePath)
	case ".wav":
		return p.durationWAV(filePath)
	case ".m4a":
		return p.durationM4A(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// MP3 duration using frame decoding; fallback to average bitrate estimation only if frames fail entirely.
func (p *Prober) durationMP3(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 { // could not decode any frame
				return p.estimateFromFileSize(path, 192000) // assume 192 kbps = 192000 bps
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		frames++
	}
	return total.Seconds(), nil
}

// FLAC duration via STREAMINFO metadata block
func (p *Prober) durationFLAC(path string) (float64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return float64(si.NSamples) / float64(si.SampleRate), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration using go-audio/wav to read header
func (p *Prober) durationWAV(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	// Approximate using file size; full sample count may require decoding all samples.
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	return float64(sampleFrames) / float64(dec.SampleRate), nil
}

// M4A (AAC in MP4) minimal duration parsing: read 'mvhd' timescale & duration.
// Lightweight manual atom scan to avoid pulling large dep. Best-effort.
func (p *Prober) durationM4A(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	for {
		head := make([]byte, 8)
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		atom := string(head[4:8])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if atom == "moov" {
			limit := int64(size) - 8
			for read := int64(0); read < limit; {
				subHead := make([]byte, 8)
				if _, err := io.ReadFull(f, subHead); err != nil {
					return 0, err
				}
				subSize := binary.BigEndian.Uint32(subHead[0:4])
				subAtom := string(subHead[4:8])
				if subAtom == "mvhd" {
					version := make([]byte, 1)
					if _, err := io.ReadFull(f, version); err != nil {
						return 0, err
					}
					var skip int64
					if version[0] == 1 { // 64-bit
						skip = 3 + 8 + 8 // flags + creation + mod times (64-bit)
					} else {
						skip = 3 + 4 + 4 // flags + times (32-bit)
					}
					if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
						return 0, err
					}
					tsBuf := make([]byte, 4)
					if _, err := io.ReadFull(f, tsBuf); err != nil {
						return 0, err
					}
					timescale := binary.BigEndian.Uint32(tsBuf)
					durBuf := make([]byte, 4)
					if _, err := io.ReadFull(f, durBuf); err != nil {
						return 0, err
					}
					durUnits := binary.BigEndian.Uint32(durBuf)
					if timescale == 0 {
						return 0, fmt.Errorf("invalid timescale")
					}
					return float64(durUnits) / float64(timescale), nil
				}
				if subSize < 8 {
					return 0, fmt.Errorf("invalid sub-atom size")
				}
				if _, err := f.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
					return 0, err
				}
				read += int64(subSize)
			}
			break
		}
		if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("mvhd atom not found")
}

// estimateFromFileSize provides last-resort estimation if parsing fails.
func (p *Prober) estimateFromFileSize(path string, bitrate int) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return float64(st.Size()*8) / float64(bitrate), nil
}
