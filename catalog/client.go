// Package catalog is a thin client for the data catalog platform's action
// API: the user/organization directory and dataset search. Both are read
// once per cycle and treated as immutable snapshots.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// User is a directory entry. Display precedence for a human-readable name
// is DisplayName > FullName > Name.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"fullname"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Sysadmin    bool   `json:"sysadmin"`
}

// OrgUser is an organization membership keyed by capacity
// ("admin", "editor" or "member").
type OrgUser struct {
	ID       string `json:"id"`
	Capacity string `json:"capacity"`
}

// Organization is a directory entry including its members.
type Organization struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Title string    `json:"title"`
	Users []OrgUser `json:"users"`
}

// Client talks to the catalog's action API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(siteURL, apiKey string) *Client {
	return &Client{
		baseURL:    siteURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) get(action string, params url.Values, result any) error {
	u := fmt.Sprintf("%s/api/3/action/%s", c.baseURL, action)
	if len(params) > 0 {
		u = u + "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog %s request failed: %w", action, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog %s returned status %d", action, resp.StatusCode)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("catalog %s returned invalid JSON: %w", action, err)
	}
	if !env.Success {
		return fmt.Errorf("catalog %s reported failure", action)
	}
	return json.Unmarshal(env.Result, result)
}

// AllUsers returns every user in the directory.
func (c *Client) AllUsers() ([]User, error) {
	params := url.Values{}
	params.Set("all_fields", "true")
	var users []User
	if err := c.get("user_list", params, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AllOrganizations returns every organization including its members.
func (c *Client) AllOrganizations() ([]Organization, error) {
	params := url.Values{}
	params.Set("all_fields", "true")
	params.Set("include_users", "true")
	var orgs []Organization
	if err := c.get("organization_list", params, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

type searchResult struct {
	Count   int `json:"count"`
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// SearchDatasetNames runs a saved-search query and returns the names of the
// matching datasets.
func (c *Client) SearchDatasetNames(query string, rows int) ([]string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("rows", fmt.Sprintf("%d", rows))
	var result searchResult
	if err := c.get("package_search", params, &result); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		names = append(names, r.Name)
	}
	return names, nil
}
