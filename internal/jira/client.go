// Package jira files issues through the Jira REST API v2.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	gojira "github.com/andygrunwald/go-jira"

	"meetingToJira/internal/config"
	"meetingToJira/internal/httpclient"
	"meetingToJira/internal/mapper"
	"meetingToJira/internal/models"
)

// StatusUnknown is reported when the new issue's status cannot be read back.
const StatusUnknown = "Unknown"

// ErrNotConfigured is returned when no Jira server is set.
var ErrNotConfigured = errors.New("jira server is not configured")

type Project struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Client struct {
	server string
	api    *gojira.Client
	logger *slog.Logger
}

// New builds a client for cfg.Server. With no server configured every call
// fails with ErrNotConfigured.
func New(cfg config.JiraConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		server: strings.TrimRight(cfg.Server, "/"),
		logger: logger,
	}
	if c.server == "" {
		return c
	}

	hc := httpclient.New(30 * time.Second)
	hc.Transport = &gojira.BasicAuthTransport{
		Username:  cfg.Email,
		Password:  cfg.APIToken,
		Transport: hc.Transport,
	}
	api, err := gojira.NewClient(hc, c.server+"/")
	if err != nil {
		logger.Error("invalid jira server url", "server", c.server, "error", err)
		c.server = ""
		return c
	}
	c.api = api
	return c
}

// CreateTickets files one issue per requirement, in order. Each result
// carries the requirement id; a failed item has Err set and does not stop
// the batch. A cancelled ctx ends the batch early with the results so far.
func (c *Client) CreateTickets(ctx context.Context, reqs []models.Requirement, projectKey string, assignee *string) []models.TicketResult {
	results := make([]models.TicketResult, 0, len(reqs))
	for _, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		res, err := c.CreateTicket(ctx, mapper.Map(req, projectKey, assignee))
		res.RequirementID = req.ID
		if err != nil {
			c.logger.Error("failed to create ticket", "requirement_id", req.ID, "error", err)
			res.Err = err
		} else {
			c.logger.Info("created ticket", "requirement_id", req.ID, "key", res.Key)
		}
		results = append(results, res)
	}
	return results
}

// CreateTicket files a single issue and reads back its workflow status.
func (c *Client) CreateTicket(ctx context.Context, f mapper.Fields) (models.TicketResult, error) {
	if c.api == nil {
		return models.TicketResult{}, ErrNotConfigured
	}
	fields := &gojira.IssueFields{
		Project:     gojira.Project{Key: f.ProjectKey},
		Summary:     f.Summary,
		Description: f.Description,
		Type:        gojira.IssueType{Name: f.IssueType},
		Labels:      f.Labels,
	}
	if f.Assignee != nil && *f.Assignee != "" {
		fields.Assignee = &gojira.User{Name: *f.Assignee}
	}

	created, resp, err := c.api.Issue.CreateWithContext(ctx, &gojira.Issue{Fields: fields})
	if err != nil {
		return models.TicketResult{}, fmt.Errorf("create issue: %w", apiError(resp, err))
	}
	if created == nil || created.Key == "" {
		return models.TicketResult{}, errors.New("create issue: response missing key")
	}

	status, err := c.IssueStatus(ctx, created.Key)
	if err != nil {
		c.logger.Warn("could not read issue status", "key", created.Key, "error", err)
		status = StatusUnknown
	}
	return models.TicketResult{
		Key:     created.Key,
		URL:     c.BrowseURL(created.Key),
		Summary: f.Summary,
		Status:  status,
	}, nil
}

// IssueStatus returns the status name of an issue.
func (c *Client) IssueStatus(ctx context.Context, key string) (string, error) {
	if c.api == nil {
		return "", ErrNotConfigured
	}
	issue, resp, err := c.api.Issue.GetWithContext(ctx, key, &gojira.GetQueryOptions{Fields: "status"})
	if err != nil {
		return "", apiError(resp, err)
	}
	if issue == nil || issue.Fields == nil || issue.Fields.Status == nil || issue.Fields.Status.Name == "" {
		return "", errors.New("issue has no status")
	}
	return issue.Fields.Status.Name, nil
}

// Projects lists the projects visible to the configured account, sorted by key.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	if c.api == nil {
		return nil, ErrNotConfigured
	}
	list, resp, err := c.api.Project.GetListWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", apiError(resp, err))
	}
	var projects []Project
	if list != nil {
		projects = make([]Project, 0, len(*list))
		for _, p := range *list {
			projects = append(projects, Project{Key: p.Key, Name: p.Name})
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Key < projects[j].Key })
	return projects, nil
}

func (c *Client) BrowseURL(key string) string {
	return c.server + "/browse/" + key
}

// apiError turns a failed go-jira call into an *httpclient.APIError when the
// server answered. Transport failures are returned as they are.
func apiError(resp *gojira.Response, err error) error {
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("jira request failed: %w", err)
	}
	detail := ""
	if resp.Body != nil {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		detail = errorDetail(raw)
	}
	if detail == "" {
		detail = err.Error()
	}
	return &httpclient.APIError{Service: "jira", StatusCode: resp.StatusCode, Body: detail}
}

// errorDetail flattens Jira's {"errorMessages":[...],"errors":{field:msg}} body.
func errorDetail(raw []byte) string {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return ""
	}
	var body struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	parts := append([]string(nil), body.ErrorMessages...)
	fields := make([]string, 0, len(body.Errors))
	for field := range body.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		parts = append(parts, field+": "+body.Errors[field])
	}
	return strings.Join(parts, "; ")
}
