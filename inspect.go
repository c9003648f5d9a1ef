package tropism

import (
	"context"

	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/tag/mp4"
)

// Inspect reports what a file holds without modifying it. Corrupt data between MP3 frames is skipped.
func Inspect(_ context.Context, path string) (*FileInfo, error) {
	in, err := load(path)
	if err != nil {
		return nil, fileError(path, err)
	}

	info := &FileInfo{Path: path, Capability: in.capability, Format: in.kind.String()}

	switch in.capability {
	case LosslessGain:
		err = inspectStream(in, info)
	case MetadataOnly:
		info.ReplayGain, err = mp4.Read(in.data)
	case AnalysisOnly:
	}

	if err != nil {
		return nil, fileError(path, err)
	}

	return info, nil
}

func inspectStream(in *input, info *FileInfo) error {
	st, err := openStream(in, true)
	if err != nil {
		return err
	}

	if frame, ok := st.first(); ok {
		info.Version = frame.Version.String()
		info.ChannelMode = frame.ChannelMode.String()
		info.SampleRate = frame.SampleRate
	}

	info.Frames = st.stats.Frames
	info.Gain = &st.stats
	info.Headroom = st.stats.HeadroomSteps()
	info.HeadroomDB = gain.ToDB(info.Headroom)

	info.ForeignReplayGain = foreignValues(in)

	if st.tag == nil {
		return nil
	}

	rec, ok, err := st.tag.Undo()
	if err != nil {
		return err //nolint:wrapcheck
	}

	if ok {
		info.Undo = &rec
	}

	minMax, ok, err := st.tag.MinMax()
	if err != nil {
		return err //nolint:wrapcheck
	}

	if ok {
		info.MinMax = &minMax
	}

	info.ReplayGain = st.tag.ReplayGain()

	return nil
}
