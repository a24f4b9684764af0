package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/tickos/internal/controlplane"
	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/scheduler"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the tickos API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// Status fetches the daemon status report.
func (c *Client) Status() (*controlplane.StatusReport, error) {
	var report controlplane.StatusReport
	if err := c.get("/status", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListTasks fetches the task table.
func (c *Client) ListTasks() ([]controlplane.TaskView, error) {
	var tasks []controlplane.TaskView
	if err := c.get("/tasks", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListEvents fetches the event table.
func (c *Client) ListEvents() ([]scheduler.EventInfo, error) {
	var events []scheduler.EventInfo
	if err := c.get("/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ListDelays fetches the soft delay table.
func (c *Client) ListDelays() ([]scheduler.DelayInfo, error) {
	var delays []scheduler.DelayInfo
	if err := c.get("/delays", &delays); err != nil {
		return nil, err
	}
	return delays, nil
}

// TaskAction posts a task verb: suspend, resume, wake, reset or delete.
func (c *Client) TaskAction(index int, verb string) error {
	return c.send(http.MethodPost, "/tasks/"+strconv.Itoa(index)+"/"+verb, nil)
}

// SleepTask puts the task at index to sleep for ms milliseconds.
func (c *Client) SleepTask(index int, ms uint32) error {
	return c.send(http.MethodPost, "/tasks/"+strconv.Itoa(index)+"/sleep", controlplane.DurationRequest{Ms: ms})
}

// EventAction posts an event verb: trigger, suspend, resume or delete.
func (c *Client) EventAction(id uint16, verb string) error {
	return c.send(http.MethodPost, "/events/"+strconv.Itoa(int(id))+"/"+verb, nil)
}

// ArmDelay arms the soft delay under key for ms milliseconds.
func (c *Client) ArmDelay(key uint16, ms uint32) error {
	return c.send(http.MethodPut, "/delays/"+strconv.Itoa(int(key)), controlplane.DurationRequest{Ms: ms})
}

// RemoveDelay releases the soft delay under key.
func (c *Client) RemoveDelay(key uint16) error {
	return c.send(http.MethodDelete, "/delays/"+strconv.Itoa(int(key)), nil)
}

func (c *Client) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) send(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e controlplane.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
}

// ListTrace fetches the most recent dispatches, newest first.
func (c *Client) ListTrace(limit int) ([]models.Dispatch, error) {
	var out []models.Dispatch
	if err := c.get("/trace?limit="+strconv.Itoa(limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}
