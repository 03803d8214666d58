package youtube

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// MaxIDsPerCall is the videos.list id limit and the search.list page size.
const MaxIDsPerCall = 50

// Client represents YouTube API client
type Client struct {
	service *youtube.Service
	limiter *rate.Limiter
	timeout time.Duration
}

// Config represents YouTube API configuration
type Config struct {
	ClientID          string        `json:"client_id"`
	ClientSecret      string        `json:"client_secret"`
	RedirectURL       string        `json:"redirect_url"`
	AccessToken       string        `json:"access_token"`
	RefreshToken      string        `json:"refresh_token"`
	APIKey            string        `json:"api_key"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
	Timeout           time.Duration `json:"timeout"`
	// Endpoint and HTTPClient override the Google endpoint, used against fakes.
	Endpoint   string       `json:"-"`
	HTTPClient *http.Client `json:"-"`
}

// NewYouTubeClient creates a new YouTube API client
func NewYouTubeClient(ctx context.Context, config *Config) (repository.IVideoSource, error) {
	return newClient(ctx, config)
}

func newClient(ctx context.Context, config *Config) (*Client, error) {
	var opts []option.ClientOption
	switch {
	case config.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	case (config.AccessToken == "" || config.RefreshToken == "") && config.APIKey != "":
		// API key only mode (read-only), enough for public metadata and listings
		opts = append(opts, option.WithAPIKey(config.APIKey))
	case config.AccessToken != "" && config.RefreshToken != "":
		oauth2Config := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{youtube.YoutubeReadonlyScope},
			Endpoint:     google.Endpoint,
		}
		token := &oauth2.Token{
			AccessToken:  config.AccessToken,
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(-1 * time.Minute), // Force refresh on first use
		}
		opts = append(opts, option.WithHTTPClient(oauth2Config.Client(ctx, token)))
	default:
		return nil, fmt.Errorf("youtube client needs an api key or oauth tokens: %w", model.ErrInvalidConfig)
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
	}, nil
}

// GetVideos retrieves details for up to MaxIDsPerCall videos in one call
func (c *Client) GetVideos(ctx context.Context, videoIDs []string) (map[string]*model.VideoRecord, model.FetchStatus, error) {
	if len(videoIDs) == 0 {
		return map[string]*model.VideoRecord{}, model.FetchSuccess, nil
	}
	if len(videoIDs) > MaxIDsPerCall {
		return nil, model.FetchFatal, fmt.Errorf("at most %d ids per call, got %d", MaxIDsPerCall, len(videoIDs))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.FetchTransient, fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	response, err := c.service.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
		Id(strings.Join(videoIDs, ",")).
		MaxResults(MaxIDsPerCall).
		Context(callCtx).
		Do()
	if err != nil {
		return nil, classify(err), fmt.Errorf("failed to get video details: %w", err)
	}

	out := make(map[string]*model.VideoRecord, len(response.Items))
	for _, video := range response.Items {
		if video == nil || video.Snippet == nil {
			continue
		}
		out[video.Id] = convertToVideoRecord(video)
	}
	return out, model.FetchSuccess, nil
}

// ListChannelVideos retrieves one page of a channel's videos ordered newest-first
func (c *Client) ListChannelVideos(ctx context.Context, channelID, pageToken string, pageSize int64) (*model.ListingPage, model.FetchStatus, error) {
	if pageSize <= 0 || pageSize > MaxIDsPerCall {
		pageSize = MaxIDsPerCall
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.FetchTransient, fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	call := c.service.Search.List([]string{"id"}).
		ChannelId(channelID).
		Type("video").
		Order("date").
		MaxResults(pageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	response, err := call.Context(callCtx).Do()
	if err != nil {
		return nil, classify(err), fmt.Errorf("failed to list channel videos: %w", err)
	}

	page := &model.ListingPage{NextPageToken: response.NextPageToken}
	for _, item := range response.Items {
		if item.Id == nil || item.Id.Kind != "youtube#video" || item.Id.VideoId == "" {
			continue
		}
		page.VideoIDs = append(page.VideoIDs, item.Id.VideoId)
	}
	return page, model.FetchSuccess, nil
}

// convertToVideoRecord converts YouTube API video to our model
func convertToVideoRecord(video *youtube.Video) *model.VideoRecord {
	publishedAt, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt)
	if err != nil {
		logger.GetLogger().WithField("videoId", video.Id).WithField("publishedAt", video.Snippet.PublishedAt).Debug("unparseable publishedAt")
	}

	var viewCount, likeCount int64
	if video.Statistics != nil {
		viewCount = clampCount(video.Statistics.ViewCount)
		likeCount = clampCount(video.Statistics.LikeCount)
	}
	var duration string
	if video.ContentDetails != nil {
		duration = video.ContentDetails.Duration
	}

	return &model.VideoRecord{
		VideoID:      video.Id,
		Title:        video.Snippet.Title,
		URL:          model.WatchURL(video.Id),
		PublishedAt:  publishedAt.UTC(),
		ViewCount:    viewCount,
		LikeCount:    likeCount,
		Description:  video.Snippet.Description,
		ChannelID:    video.Snippet.ChannelId,
		ChannelTitle: video.Snippet.ChannelTitle,
		Tags:         video.Snippet.Tags,
		Duration:     duration,
	}
}

func clampCount(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// classify maps an API error onto the fetch result variants.
func classify(err error) model.FetchStatus {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return model.FetchNotFound
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError:
			return model.FetchTransient
		case gerr.Code == http.StatusForbidden:
			for _, item := range gerr.Errors {
				switch item.Reason {
				case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
					return model.FetchTransient
				}
			}
			return model.FetchFatal
		default:
			return model.FetchFatal
		}
	}
	if errors.Is(err, context.Canceled) {
		return model.FetchFatal
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return model.FetchTransient
	}
	return model.FetchTransient
}
