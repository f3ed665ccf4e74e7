// Package fetch implements the rate-limited, cached download layer. Every
// successful network response is persisted under a cache directory keyed by
// a filename derived from the URL, and served from there while its TTL has
// not expired. Outbound requests are spaced by a randomized minimum delay
// shared across all requests of one Fetcher, as a defense against remote
// rate limiting.
package fetch

import (
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/macfreek/game-db-manager/pkg/errors"
	"github.com/macfreek/game-db-manager/pkg/logging"
)

// DefaultDelay is the base inter-request delay when none is configured.
const DefaultDelay = 200 * time.Millisecond

// Request describes one cached download.
type Request struct {
	// URL is the resource to fetch.
	URL string

	// CacheName overrides the derived cache key (relative path).
	CacheName string

	// TTLDays is the cache time-to-live in days. Fractions are allowed.
	TTLDays float64

	// Kind selects the decoder and the default cache extension.
	Kind Kind

	// Target receives the decoded payload (a pointer for JSON/XML kinds).
	// May be nil; the payload is then only validated.
	Target any

	// Cookies are added to this request only. Session-wide cookies belong
	// in the Fetcher's jar via AddCookie.
	Cookies []*http.Cookie
}

// Result carries the raw payload and its provenance.
type Result struct {
	// Body is the raw payload.
	Body []byte

	// FinalURL is the URL after following redirects. Equal to the request
	// URL for cache hits.
	FinalURL string

	// FromCache reports whether the payload was served from local storage.
	FromCache bool
}

// Text returns the payload as a string.
func (r *Result) Text() string { return string(r.Body) }

// Fetcher downloads resources with pacing and a file cache. Not safe for
// concurrent use; the design assumes a single sequential pass per process.
type Fetcher struct {
	root        string
	client      *http.Client
	jar         http.CookieJar
	minDelay    time.Duration
	maxDelay    time.Duration
	prev        time.Time
	includeHost bool
	defaultExt  string

	// Injection points for tests.
	now     func() time.Time
	sleep   func(time.Duration)
	uniform func(min, max time.Duration) time.Duration

	log zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDelay sets the base delay d; consecutive dispatches are spaced by a
// random duration in [0.5d, 1.5d].
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.minDelay = d / 2
		f.maxDelay = d + d/2
	}
}

// WithoutHostPrefix disables hostname namespacing of derived cache keys.
func WithoutHostPrefix() Option {
	return func(f *Fetcher) { f.includeHost = false }
}

// WithDefaultExtension sets the extension for derived cache keys whose URL
// path does not force one.
func WithDefaultExtension(ext string) Option {
	return func(f *Fetcher) { f.defaultExt = ext }
}

// WithHTTPClient replaces the HTTP client. The client's jar is kept in use
// for AddCookie if it has one.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
		if c.Jar != nil {
			f.jar = c.Jar
		}
	}
}

// WithClock injects time functions, so tests can run without real sleeps.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(f *Fetcher) {
		f.now = now
		f.sleep = sleep
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = log }
}

// New creates a Fetcher rooted at cacheDir, creating the directory if needed.
func New(cacheDir string, opts ...Option) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	f := &Fetcher{
		root:        cacheDir,
		client:      &http.Client{Jar: jar},
		jar:         jar,
		includeHost: true,
		defaultExt:  ".html",
		now:         time.Now,
		sleep:       time.Sleep,
		log:         *logging.Default(),
	}
	WithDelay(DefaultDelay)(f)
	f.uniform = func(min, max time.Duration) time.Duration {
		return min + time.Duration(rand.Int63n(int64(max-min)+1))
	}
	for _, opt := range opts {
		opt(f)
	}
	// The first dispatch carries no pacing debt.
	f.prev = f.now().Add(-f.maxDelay)

	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return nil, err
	}
	f.log.Debug().Str("dir", f.root).Msg("cache folder ready")
	return f, nil
}

// AddCookie stores a session cookie for all requests to the given domain.
func (f *Fetcher) AddCookie(name, value, domain string) {
	u := &url.URL{Scheme: "https", Host: domain, Path: "/"}
	f.jar.SetCookies(u, []*http.Cookie{{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   "/",
	}})
}

// CacheDir returns the cache root directory.
func (f *Fetcher) CacheDir() string { return f.root }

// Do fetches the requested resource, from cache when fresh, otherwise from
// the network with pacing applied. The decoded payload lands in req.Target;
// the returned Result carries the raw bytes and provenance.
func (f *Fetcher) Do(req Request) (*Result, error) {
	cacheName := req.CacheName
	if cacheName == "" {
		ext := f.defaultExt
		if req.Kind != KindText {
			ext = req.Kind.ext()
		}
		cacheName = CacheKey(req.URL, ext, f.includeHost)
	}
	path := filepath.Join(f.root, filepath.FromSlash(cacheName))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewConnectivityError(req.URL, err)
	}

	res := &Result{FinalURL: req.URL}
	if f.fresh(path, req.TTLDays) {
		f.log.Debug().Str("cache", cacheName).Msg("fetching from cache")
		data, err := os.ReadFile(path)
		if err == nil {
			res.Body = data
			res.FromCache = true
		} else {
			// Unreadable cache entry; fall through to the network.
			f.log.Warn().Err(err).Str("cache", cacheName).Msg("cache entry unreadable")
		}
	}

	if !res.FromCache {
		if err := f.download(req, res); err != nil {
			return nil, err
		}
	}

	if err := decode(req.Kind, res.Body, req.Target); err != nil {
		return nil, f.classifyDecodeError(req, res, err)
	}

	// Persist only genuinely new downloads, and only after decoding
	// succeeded. A failed write is logged and swallowed: the decoded
	// result is still valid.
	if !res.FromCache {
		f.log.Debug().Str("path", path).Msg("write cache entry")
		if err := os.WriteFile(path, res.Body, 0o644); err != nil {
			f.log.Warn().Err(err).Str("path", path).Msg("can't write cache entry")
		}
	}
	return res, nil
}

// fresh reports whether the cache entry at path is younger than the TTL.
func (f *Fetcher) fresh(path string, ttlDays float64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	age := f.now().Sub(info.ModTime())
	return age < time.Duration(ttlDays*86400*float64(time.Second))
}

// download performs the paced network fetch and fills res.
func (f *Fetcher) download(req Request, res *Result) error {
	wait := f.uniform(f.minDelay, f.maxDelay) - f.now().Sub(f.prev)
	if wait > 0 {
		f.sleep(wait)
	}
	f.log.Debug().Str("url", req.URL).Dur("delay", wait).Msg("fetching")

	httpReq, err := http.NewRequest(http.MethodGet, req.URL, nil)
	if err != nil {
		return errors.NewConnectivityError(req.URL, err)
	}
	for _, c := range req.Cookies {
		httpReq.AddCookie(c)
	}
	resp, err := f.client.Do(httpReq)
	// The dispatch time is recorded unconditionally, error or not, so
	// failed calls still count against the pacing budget.
	f.prev = f.now()
	if err != nil {
		f.log.Error().Err(err).Str("url", req.URL).Msg("can't connect")
		return errors.NewConnectivityError(req.URL, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	res.Body, err = io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewConnectivityError(req.URL, err)
	}
	res.FinalURL = resp.Request.URL.String()
	if res.FinalURL != req.URL {
		f.log.Info().Str("url", req.URL).Str("final", res.FinalURL).Msg("request redirected")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// No automatic retry or backoff beyond the pacing delay; the
		// Steam API omits Retry-After on 429 anyway.
		f.log.Warn().Int("status", resp.StatusCode).Str("url", req.URL).Msg("HTTP error")
		return errors.NewHTTPStatusError(req.URL, resp.StatusCode)
	}
	return nil
}

// classifyDecodeError applies the decision tree for decode failures:
// empty payload is reported specifically, a same-URL failure is a definitive
// content error, a redirect containing "login" is a permission failure, and
// any other redirect means we got entirely different content.
func (f *Fetcher) classifyDecodeError(req Request, res *Result, err error) error {
	format := req.Kind.String()
	if len(res.Body) == 0 {
		f.log.Error().Str("url", req.URL).Msgf("downloaded 0 bytes, invalid %s", format)
	}
	decErr := &errors.DecodeError{
		URL:      req.URL,
		FinalURL: res.FinalURL,
		Format:   format,
		Err:      err,
	}
	switch {
	case res.FinalURL == req.URL:
		decErr.Kind = errors.DecodeFailed
		f.log.Error().Err(err).Str("url", req.URL).Msgf("can't decode %s", format)
	case strings.Contains(res.FinalURL, "login"):
		decErr.Kind = errors.DecodeLoginRedirect
		f.log.Error().Str("url", req.URL).Str("final", res.FinalURL).
			Msg("redirected to login page, please verify login credentials")
	default:
		decErr.Kind = errors.DecodeWrongContent
		f.log.Error().Str("url", req.URL).Str("final", res.FinalURL).
			Msgf("redirected to non-%s page", format)
	}
	return decErr
}

// Backup copies sourceFile into the cache folder under a date-stamped name.
// Used as the database pre-write hook so the first mutation of a run keeps
// a copy of the original database file.
func (f *Fetcher) Backup(sourceFile string) error {
	data, err := os.ReadFile(sourceFile)
	if err != nil {
		f.log.Warn().Str("file", sourceFile).Msg("can't make backup, file not found")
		return err
	}
	base := filepath.Base(sourceFile)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	sep := "."
	if strings.Contains(stem, " ") {
		sep = " "
	}
	dest := filepath.Join(f.root, stem+sep+f.now().Format("2006-01-02")+ext)
	f.log.Debug().Str("from", sourceFile).Str("to", dest).Msg("backup")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		f.log.Warn().Str("to", dest).Msg("can't write backup")
		return err
	}
	return nil
}
