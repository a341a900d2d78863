package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/templatemail/internal/server"
)

const (
	// IndexURI lists the templates and the state of the templates folder.
	IndexURI = "templates://index"

	// TemplateURIPrefix addresses one template by file name.
	TemplateURIPrefix = "template://"
)

// RegisterTemplateResources registers the template index and one resource
// template for reading a template's HTML.
func RegisterTemplateResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	indexResource := mcp.NewResource(
		IndexURI,
		"Template Index",
		mcp.WithResourceDescription("The HTML email templates available in the templates folder"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(indexResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleIndex(ctx, request, sc)
	})

	templateResource := mcp.NewResourceTemplate(
		TemplateURIPrefix+"{name}",
		"Email Template",
		mcp.WithTemplateDescription("Raw HTML of one email template, e.g. template://welcome.html"),
		mcp.WithTemplateMIMEType("text/html"),
	)
	s.AddResourceTemplate(templateResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleTemplate(ctx, request, sc)
	})

	return nil
}

type index struct {
	Dir       string   `json:"dir"`
	Exists    bool     `json:"exists"`
	Templates []string `json:"templates"`
}

func handleIndex(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	store := sc.Store()
	names, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	if names == nil {
		names = []string{}
	}

	data, err := json.MarshalIndent(index{Dir: store.Dir(), Exists: store.Exists(), Templates: names}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template index: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func handleTemplate(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	name, ok := strings.CutPrefix(request.Params.URI, TemplateURIPrefix)
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid template URI %q", request.Params.URI)
	}

	content, err := sc.Store().Read(name)
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", name, err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/html",
			Text:     content,
		},
	}, nil
}
