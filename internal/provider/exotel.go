package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSubdomain — API-хост Exotel по умолчанию.
	DefaultSubdomain = "api.exotel.com"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1024
	maxResponse    = 1 << 20 // 1 MB
)

// Config — настройки клиента Exotel.
type Config struct {
	APIKey     string
	APIToken   string
	Subdomain  string
	AccountSID string
	AppSID     string
	CallerID   string

	// BaseURL переопределяет https://{Subdomain} (для тестов).
	BaseURL string

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// CallDetails — ответ FetchCallDetails.
type CallDetails struct {
	Sid          string
	Status       string
	Duration     int
	RecordingURL string
}

// Exotel — HTTP клиент Exotel.
type Exotel struct {
	cfg    Config
	base   string
	client *http.Client
	logger *slog.Logger
}

// NewExotel создаёт клиент Exotel.
func NewExotel(cfg Config) *Exotel {
	if cfg.Subdomain == "" {
		cfg.Subdomain = DefaultSubdomain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	base := cfg.BaseURL
	if base == "" {
		base = "https://" + cfg.Subdomain
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Exotel{
		cfg:    cfg,
		base:   strings.TrimRight(base, "/"),
		client: client,
		logger: logger.With("component", "exotel"),
	}
}

// exotelResponse — XML ответ Exotel; корневой элемент не проверяется.
type exotelResponse struct {
	Call *struct {
		Sid          string `xml:"Sid"`
		Status       string `xml:"Status"`
		Duration     string `xml:"Duration"`
		RecordingURL string `xml:"RecordingUrl"`
	} `xml:"Call"`
}

// PlaceCall размещает исходящий звонок и возвращает CallSid.
// Пустой callerID заменяется на Config.CallerID.
func (e *Exotel) PlaceCall(ctx context.Context, phone, callerID, callbackURL string) (string, error) {
	if callerID == "" {
		callerID = e.cfg.CallerID
	}

	form := url.Values{}
	form.Set("From", phone)
	form.Set("CallerId", callerID)
	form.Set("Url", e.appURL())
	if callbackURL != "" {
		form.Set("StatusCallback", callbackURL)
		form.Set("StatusCallbackContentType", "application/json")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.accountURL("Calls", "connect"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parsed, err := e.do(req)
	if err != nil {
		return "", err
	}
	if parsed.Call == nil || strings.TrimSpace(parsed.Call.Sid) == "" {
		return "", fmt.Errorf("%w: Call/Sid", ErrMissingField)
	}

	sid := strings.TrimSpace(parsed.Call.Sid)
	e.logger.Debug("call placed", "phone", phone, "call_sid", sid)
	return sid, nil
}

// FetchCallDetails запрашивает текущее состояние звонка у провайдера.
func (e *Exotel) FetchCallDetails(ctx context.Context, callSid string) (*CallDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.accountURL("Calls", url.PathEscape(callSid)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}

	parsed, err := e.do(req)
	if err != nil {
		return nil, err
	}
	if parsed.Call == nil {
		return nil, fmt.Errorf("%w: Call", ErrMissingField)
	}
	if strings.TrimSpace(parsed.Call.Status) == "" {
		return nil, fmt.Errorf("%w: Call/Status", ErrMissingField)
	}

	details := &CallDetails{
		Sid:          strings.TrimSpace(parsed.Call.Sid),
		Status:       strings.TrimSpace(parsed.Call.Status),
		Duration:     parseDuration(parsed.Call.Duration),
		RecordingURL: strings.TrimSpace(parsed.Call.RecordingURL),
	}
	if details.Sid == "" {
		details.Sid = callSid
	}
	return details, nil
}

// do выполняет запрос с basic auth и разбирает XML ответ.
func (e *Exotel) do(req *http.Request) (*exotelResponse, error) {
	req.SetBasicAuth(e.cfg.APIKey, e.cfg.APIToken)
	req.Header.Set("Accept", "application/xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var parsed exotelResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed xml: %v", ErrProvider, err)
	}
	return &parsed, nil
}

func (e *Exotel) accountURL(parts ...string) string {
	return e.base + "/v1/Accounts/" + url.PathEscape(e.cfg.AccountSID) + "/" + strings.Join(parts, "/")
}

// appURL — ExoML приложение, с которым соединяется звонок.
func (e *Exotel) appURL() string {
	return fmt.Sprintf("http://my.exotel.com/%s/exoml/start_voice/%s", e.cfg.AccountSID, e.cfg.AppSID)
}

// parseDuration разбирает длительность в секундах; пустое или битое значение — 0.
func parseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}
