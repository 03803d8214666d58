package filecsv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yt-pipeline/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadChannels(t *testing.T) {
	input := `channel_id,name,backfill_target
# seeded from the ops sheet
UC_x5XG1OV2P6uZZ5FSM9Ttw, Google Developers, 120
UCBR8-60-B28hp2BmDPdntcQ,YouTube
UCBR8-60-B28hp2BmDPdntcQ,duplicate,5
UCabc
`
	channels, err := ReadChannels(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []model.TrackedChannel{
		{ChannelID: "UC_x5XG1OV2P6uZZ5FSM9Ttw", Name: "Google Developers", BackfillTarget: 120},
		{ChannelID: "UCBR8-60-B28hp2BmDPdntcQ", Name: "YouTube"},
		{ChannelID: "UCabc"},
	}, channels)
}

func TestReadChannelsInvalidTarget(t *testing.T) {
	_, err := ReadChannels(strings.NewReader("C1,name,lots\n"))
	assert.ErrorContains(t, err, "invalid backfill target")
}

func TestLoadChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.csv")
	require.NoError(t, os.WriteFile(path, []byte("C1\nC2,Second,10\n"), 0o644))

	channels, err := LoadChannels(path)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, 10, channels[1].BackfillTarget)

	_, err = LoadChannels(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
