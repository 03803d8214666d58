package filecsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"yt-pipeline/domain/model"
	"yt-pipeline/infrastructure/logger"
)

func NewFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while open file")
		return nil, err
	}

	return file, nil
}

// LoadChannels reads a channel seed file from path.
func LoadChannels(path string) ([]model.TrackedChannel, error) {
	file, err := NewFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadChannels(file)
}

// ReadChannels parses rows of channel_id[,name[,backfill_target]].
// A header row starting with channel_id and lines starting with # are skipped.
// A missing or zero target means "use the configured default".
func ReadChannels(r io.Reader) ([]model.TrackedChannel, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var out []model.TrackedChannel
	seen := map[string]bool{}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read channels: %w", err)
		}
		id := strings.TrimSpace(record[0])
		if id == "" || (line == 1 && strings.EqualFold(id, "channel_id")) {
			continue
		}
		ch := model.TrackedChannel{ChannelID: id}
		if len(record) > 1 {
			ch.Name = strings.TrimSpace(record[1])
		}
		if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(record[2]))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("channel %s: invalid backfill target %q", id, record[2])
			}
			ch.BackfillTarget = n
		}
		if seen[id] {
			logger.GetLogger().WithField("channelId", id).Warn("duplicate channel in seed file, keeping first")
			continue
		}
		seen[id] = true
		out = append(out, ch)
	}
	return out, nil
}
