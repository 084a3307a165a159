package supabase

import (
	"github.com/supabase-community/supabase-go"
	"progress-tracker-backend/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}

// Portal returns the read-only PostgREST view used by the client portal.
func (c *Client) Portal() *PortalClient {
	return NewPortalClient(c.Supabase)
}

func (c *Client) Storage() (*StorageClient, error) {
	return NewStorageClient(c.Config.SupabaseURL, c.Config.SupabasePublishableKey, c.Config.SupabaseStorageBucket)
}
