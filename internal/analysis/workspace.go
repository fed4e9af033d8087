package analysis

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/formcoach/formcheck/internal/provider"
)

// WorkspaceCapabilities are requested when the resolver has to create the
// workspace: the analysis needs both visual and audio understanding.
var WorkspaceCapabilities = []string{"visual", "audio"}

type workspaceClient interface {
	ListWorkspaces(ctx context.Context, pageLimit int) ([]provider.Workspace, error)
	CreateWorkspace(ctx context.Context, name string, capabilities []string) (string, error)
}

// WorkspaceResolver finds the named workspace or creates it on first use.
// Nothing is cached between calls; concurrent calls for the same name inside
// one process share a single lookup.
type WorkspaceResolver struct {
	client    workspaceClient
	pageLimit int
	logger    *slog.Logger
	group     singleflight.Group
}

func NewWorkspaceResolver(client workspaceClient, pageLimit int, logger *slog.Logger) *WorkspaceResolver {
	return &WorkspaceResolver{client: client, pageLimit: pageLimit, logger: logger}
}

func (r *WorkspaceResolver) Resolve(ctx context.Context, name string) (string, error) {
	v, err, _ := r.group.Do(name, func() (any, error) {
		return r.resolve(ctx, name)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *WorkspaceResolver) resolve(ctx context.Context, name string) (string, error) {
	workspaces, err := r.client.ListWorkspaces(ctx, r.pageLimit)
	if err != nil {
		return "", classify("list workspaces", err)
	}

	for _, ws := range workspaces {
		if ws.Name == name && ws.ID != "" {
			r.logger.Debug("workspace found", "workspace", name, "workspace_id", ws.ID)
			return ws.ID, nil
		}
	}

	// Separate processes can still race here; the provider arbitrates
	// duplicate names.
	id, err := r.client.CreateWorkspace(ctx, name, WorkspaceCapabilities)
	if err != nil {
		return "", classify("create workspace", err)
	}
	if id == "" {
		return "", protocolError("create workspace", ReasonMissingWorkspace, nil)
	}

	r.logger.Info("workspace created", "workspace", name, "workspace_id", id)
	return id, nil
}
