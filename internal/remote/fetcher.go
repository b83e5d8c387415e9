package remote

import (
	"context"
	"os"
	"strings"
	"time"

	"location-sync-service/internal/notify"
	"location-sync-service/pkg/errors"
	"location-sync-service/pkg/logger"
)

// DefaultDateLayout is the date format files are named with
const DefaultDateLayout = "20060102"

// FetchConfig holds the settings of a fetch run
type FetchConfig struct {
	Server    string
	Port      int
	Username  string
	Password  string
	RemoteDir string
	LocalDir  string

	// Date is the first date to look for, formatted with DateLayout.
	// Empty means today.
	Date       string
	DateLayout string
	DateRange  bool

	Timeout time.Duration
}

// DefaultFetchConfig returns a configuration with the standard port, layout and timeout
func DefaultFetchConfig() *FetchConfig {
	return &FetchConfig{
		Port:       21,
		DateLayout: DefaultDateLayout,
		Timeout:    30 * time.Second,
	}
}

// Validate validates the configuration
func (c *FetchConfig) Validate() error {
	required := []struct {
		setting string
		value   string
	}{
		{"server", c.Server},
		{"username", c.Username},
		{"password", c.Password},
		{"remote_dir", c.RemoteDir},
		{"local_dir", c.LocalDir},
		{"date_layout", c.DateLayout},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, r.setting, r.value, nil)
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "port", c.Port, nil)
	}
	if c.Date != "" {
		if _, err := time.Parse(c.DateLayout, c.Date); err != nil {
			return errors.ValidationError(errors.CodeInvalidDate, "date", c.Date, err)
		}
	}
	return nil
}

// FromDate returns the first date of the run
func (c *FetchConfig) FromDate(today time.Time) (time.Time, error) {
	if c.Date == "" {
		return today, nil
	}
	from, err := time.Parse(c.DateLayout, c.Date)
	if err != nil {
		return time.Time{}, errors.ValidationError(errors.CodeInvalidDate, "date", c.Date, err)
	}
	return from, nil
}

// FetchResult is the outcome of a fetch run
type FetchResult struct {
	Dates      []string         `json:"dates"`
	Listed     int              `json:"listed"`
	Selected   []string         `json:"selected"`
	Transfers  []TransferResult `json:"transfers"`
	Downloaded int              `json:"downloaded"`
}

// Failed returns the transfers that did not succeed
func (r *FetchResult) Failed() []TransferResult {
	var failed []TransferResult
	for _, t := range r.Transfers {
		if !t.OK() {
			failed = append(failed, t)
		}
	}
	return failed
}

// Fetcher runs one selection and download pass against the remote host
type Fetcher struct {
	config   *FetchConfig
	dial     Dialer
	notifier notify.Notifier
	now      func() time.Time
	logger   logger.Logger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithDialer overrides how the session is opened
func WithDialer(dial Dialer) FetcherOption {
	return func(f *Fetcher) {
		f.dial = dial
	}
}

// WithNotifier sets the notification sink
func WithNotifier(n notify.Notifier) FetcherOption {
	return func(f *Fetcher) {
		f.notifier = n
	}
}

// WithToday overrides the clock used for the default date and range end
func WithToday(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
	}
}

// NewFetcher creates a Fetcher
func NewFetcher(config *FetchConfig, opts ...FetcherOption) (*Fetcher, error) {
	if config == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "fetch", nil, nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f := &Fetcher{
		config: config,
		dial:   DialFTP,
		now:    time.Now,
		logger: logger.GetGlobalLogger().WithComponent("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.notifier == nil {
		f.notifier = notify.NewLogNotifier(f.logger)
	}
	return f, nil
}

// Run connects, selects the dated files, downloads them and notifies the
// operator of the download count. Connection, login and listing failures are
// returned; individual transfer failures are only recorded.
func (f *Fetcher) Run(ctx context.Context) (*FetchResult, error) {
	cfg := f.config
	op := logger.NewOperationLogger("fetch", f.logger).WithFields(logger.Fields{
		"server":     cfg.Server,
		"port":       cfg.Port,
		"user":       cfg.Username,
		"remote_dir": cfg.RemoteDir,
		"local_dir":  cfg.LocalDir,
	})

	today := f.now()
	from, err := cfg.FromDate(today)
	if err != nil {
		op.Error(err, "Invalid date")
		return nil, err
	}

	if info, err := os.Stat(cfg.LocalDir); err != nil || !info.IsDir() {
		err := errors.FileError(errors.CodeDirectoryMissing, cfg.LocalDir, err)
		op.Error(err, "Local directory missing")
		return nil, err
	}

	client, err := f.dial(ctx, cfg)
	if err != nil {
		op.Error(err, "Connect failed")
		return nil, err
	}
	defer func() {
		if err := client.Quit(); err != nil {
			f.logger.WithError(err).Warn("Quit failed")
		}
	}()
	op.Step("connected")

	if err := client.ChangeDir(cfg.RemoteDir); err != nil {
		err := errors.NetworkError(errors.CodeListingFailed, cfg.RemoteDir, err)
		op.Error(err, "Change directory failed")
		return nil, err
	}
	listing, err := client.NameList("")
	if err != nil {
		err := errors.NetworkError(errors.CodeListingFailed, cfg.RemoteDir, err)
		op.Error(err, "Listing failed")
		return nil, err
	}
	names := baseNames(listing)

	result := &FetchResult{
		Dates:  DateStrings(from, cfg.DateLayout, cfg.DateRange, today),
		Listed: len(names),
	}
	result.Selected = Select(names, result.Dates)

	f.logger.WithFields(logger.Fields{
		"dates":    result.Dates,
		"listed":   result.Listed,
		"selected": len(result.Selected),
	}).Info("Selected remote files")

	for _, name := range result.Selected {
		if err := ctx.Err(); err != nil {
			op.Error(err, "Fetch cancelled")
			return result, errors.NetworkError(errors.CodeTimeout, cfg.Server, err)
		}

		transfer := Download(client, name, cfg.LocalDir)
		result.Transfers = append(result.Transfers, transfer)
		if !transfer.OK() {
			f.logger.WithError(transfer.Err).WithField("file", name).Error("Download failed")
			continue
		}
		result.Downloaded++
		f.logger.WithFields(logger.Fields{
			"file":  name,
			"bytes": transfer.Bytes,
		}).Info("Downloaded file")
	}

	if err := f.notifier.Notify(ctx, notify.Summary(result.Downloaded)); err != nil {
		f.logger.WithError(err).Warn("Notification failed")
	}

	op.WithField("downloaded", result.Downloaded).Success("Fetch complete")
	return result, nil
}
