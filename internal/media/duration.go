package media

import (
	"errors"
	"fmt"
	"io"

	"github.com/tcolgate/mp3"
)

// ProbeMP3Duration はMP3フレームを走査して再生時間（秒）を返す。
// 末尾の不完全なフレームは無視する。
func ProbeMP3Duration(r io.Reader) (float64, error) {
	var (
		seconds float64
		dec     = mp3.NewDecoder(r)
		frame   mp3.Frame
		skipped int
		frames  int
	)

	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("failed to decode mp3 frame: %w", err)
		}
		seconds += frame.Duration().Seconds()
		frames++
	}

	if frames == 0 {
		return 0, fmt.Errorf("no mp3 frames found")
	}
	return seconds, nil
}
