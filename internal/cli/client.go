package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// CampaignResponse — кампания из API.
type CampaignResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	TotalCalls     int    `json:"total_calls"`
	CompletedCalls int    `json:"completed_calls"`
	FailedCalls    int    `json:"failed_calls"`
	CreatedAt      string `json:"created_at"`
	IsRunning      bool   `json:"is_running"`
	AnalysisStatus string `json:"analysis_status,omitempty"`
}

// CallResponse — звонок из API.
type CallResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Status          string `json:"status"`
	ProviderCallID  string `json:"provider_call_id,omitempty"`
	ConversationID  string `json:"conversation_id,omitempty"`
	Duration        int    `json:"duration"`
	ErrorMessage    string `json:"error_message,omitempty"`
	PreferredCity   string `json:"preferred_city,omitempty"`
	Interested      string `json:"interested,omitempty"`
	AnalysisOutcome string `json:"analysis_outcome,omitempty"`
	UpdatedAt       string `json:"updated_at"`
}

// RunStateResponse — состояние запуска кампании.
type RunStateResponse struct {
	IsRunning      bool   `json:"is_running"`
	AnalysisStatus string `json:"analysis_status"`
	LastUpdated    string `json:"last_updated"`
}

// CampaignDetail — кампания со звонками.
type CampaignDetail struct {
	Campaign CampaignResponse  `json:"campaign"`
	Calls    []CallResponse    `json:"calls"`
	State    *RunStateResponse `json:"state"`
}

// CreateCampaignResponse — результат загрузки кампании.
type CreateCampaignResponse struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	TotalCalls int    `json:"total_calls"`
}

// StatsResponse — статистика кампании.
type StatsResponse struct {
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	Pending        int    `json:"pending"`
	Done           int    `json:"done"`
	IsRunning      bool   `json:"is_running"`
	AnalysisStatus string `json:"analysis_status"`
}

// AnalyzedCall — результат анализа звонка.
type AnalyzedCall struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	ProviderCallID string `json:"provider_call_id,omitempty"`
	Status         string `json:"status"`
	PreferredCity  string `json:"preferred_city,omitempty"`
	Interested     string `json:"interested,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
}

// AnalysisResponse — статус анализа и проанализированные звонки.
type AnalysisResponse struct {
	AnalysisStatus string         `json:"analysis_status"`
	Calls          []AnalyzedCall `json:"calls"`
}

// --- Request types ---

// Contact — строка списка обзвона.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// CreateCampaignRequest — загрузка кампании.
type CreateCampaignRequest struct {
	Name  string    `json:"name"`
	Calls []Contact `json:"calls"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Dialer API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Campaigns ---

// ListCampaigns возвращает все кампании.
func (c *Client) ListCampaigns() ([]CampaignResponse, error) {
	var campaigns []CampaignResponse
	err := c.get("/api/v1/campaigns", &campaigns)
	return campaigns, err
}

// CreateCampaign загружает кампанию.
func (c *Client) CreateCampaign(req CreateCampaignRequest) (*CreateCampaignResponse, error) {
	var created CreateCampaignResponse
	err := c.post("/api/v1/campaigns", req, &created)
	return &created, err
}

// GetCampaign возвращает кампанию со звонками.
func (c *Client) GetCampaign(id string) (*CampaignDetail, error) {
	var detail CampaignDetail
	err := c.get(campaignPath(id), &detail)
	return &detail, err
}

// CampaignStats возвращает статистику кампании.
func (c *Client) CampaignStats(id string) (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get(campaignPath(id, "stats"), &stats)
	return &stats, err
}

// StartCampaign запускает обзвон. Возвращает started или already_running.
func (c *Client) StartCampaign(id string) (string, error) {
	return c.action(http.MethodPost, campaignPath(id, "start"))
}

// PauseCampaign ставит обзвон на паузу.
func (c *Client) PauseCampaign(id string) (string, error) {
	return c.action(http.MethodPost, campaignPath(id, "pause"))
}

// DeleteCampaign удаляет кампанию.
func (c *Client) DeleteCampaign(id string) (string, error) {
	return c.action(http.MethodDelete, campaignPath(id))
}

// --- Analysis ---

// TriggerAnalysis запускает анализ. Возвращает processing_started или already_processing.
func (c *Client) TriggerAnalysis(id string) (string, error) {
	return c.action(http.MethodPost, campaignPath(id, "analysis"))
}

// GetAnalysis возвращает статус и результаты анализа.
func (c *Client) GetAnalysis(id string) (*AnalysisResponse, error) {
	var resp AnalysisResponse
	err := c.get(campaignPath(id, "analysis"), &resp)
	return &resp, err
}

// --- Config ---

// GetConfig возвращает несекретную конфигурацию сервера.
func (c *Client) GetConfig() (map[string]any, error) {
	var cfg map[string]any
	err := c.get("/api/v1/config", &cfg)
	return cfg, err
}

// --- HTTP helpers ---

func campaignPath(id string, parts ...string) string {
	path := "/api/v1/campaigns/" + url.PathEscape(id)
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

// action выполняет действие над кампанией и возвращает его статус.
func (c *Client) action(method, path string) (string, error) {
	var sr statusResponse
	if err := c.doData(method, path, nil, &sr); err != nil {
		return "", err
	}
	return sr.Status, nil
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
