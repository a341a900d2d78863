package template_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/templatemail/internal/delivery"
	"github.com/teemow/templatemail/internal/google"
	"github.com/teemow/templatemail/internal/rewrite"
	"github.com/teemow/templatemail/internal/server"
	"github.com/teemow/templatemail/internal/tools/batch"
	"github.com/teemow/templatemail/internal/tools/common"
	"github.com/teemow/templatemail/internal/webhook"
)

// RegisterTemplateTools registers the template tools with the MCP server.
func RegisterTemplateTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTool := mcp.NewTool("template_list",
		mcp.WithDescription("List the HTML email templates in the templates directory"),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("template_list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleList(ctx, request, sc)
		}))

	getTool := mcp.NewTool("template_get",
		mcp.WithDescription("Get the raw HTML of a template"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Template file name, e.g. 'welcome.html'"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("template_get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGet(ctx, request, sc)
		}))

	checkTool := mcp.NewTool("template_check",
		mcp.WithDescription("Check that templates can be read and look like HTML documents. Reports one result per template"),
		mcp.WithString("names",
			mcp.Description("Template name (string) or array of names to check (default: all templates)"),
		),
	)
	s.AddTool(checkTool, common.InstrumentedToolHandler("template_check", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCheck(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	rewriteTool := mcp.NewTool("template_rewrite",
		mcp.WithDescription("Apply an AI edit to the text of a template. The layout is kept and the result is saved as a new timestamped template next to the original"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Template file name, e.g. 'welcome.html'"),
		),
		mcp.WithString("instruction",
			mcp.Required(),
			mcp.Description("Description of the textual changes, e.g. 'change the greeting to Hello Sam'"),
		),
	)
	s.AddTool(rewriteTool, common.InstrumentedToolHandler("template_rewrite", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRewrite(ctx, request, sc)
		}))

	sendTool := mcp.NewTool("template_send",
		mcp.WithDescription("Send a template as an HTML email through the workflow webhook or Gmail"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Template file name, e.g. 'welcome.html'"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address(es), comma-separated for multiple recipients"),
		),
		mcp.WithString("subject",
			mcp.Description("Email subject (default: 'Email from <name>')"),
		),
		mcp.WithString("channel",
			mcp.Description("Delivery channel: 'webhook' (default) or 'gmail'"),
			mcp.Enum("webhook", "gmail"),
		),
	)
	s.AddTool(sendTool, common.InstrumentedToolHandler("template_send", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSend(ctx, request, sc)
		}))

	return nil
}

func handleList(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	store := sc.Store()
	if !store.Exists() {
		return mcp.NewToolResultError(fmt.Sprintf("The '%s' folder does not exist.", store.Dir())), nil
	}

	names, err := store.List()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list templates: %v", err)), nil
	}
	if len(names) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No HTML files found in the '%s' folder.", store.Dir())), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d templates in '%s':\n", len(names), store.Dir())
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleCheck(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	names, err := batch.ParseNames(request.GetArguments()["names"], "names")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	store := sc.Store()
	if len(names) == 0 {
		if !store.Exists() {
			return mcp.NewToolResultError(fmt.Sprintf("The '%s' folder does not exist.", store.Dir())), nil
		}
		if names, err = store.List(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list templates: %v", err)), nil
		}
	}

	results := batch.Process(names, func(name string) (string, error) {
		content, err := store.Read(name)
		if err != nil {
			return "", err
		}
		trimmed := strings.TrimSpace(content)
		if !rewrite.LooksLikeHTML(trimmed) {
			return "", fmt.Errorf("content does not look like HTML: %s", rewrite.Diagnostic(trimmed))
		}
		return fmt.Sprintf("%d bytes", len(content)), nil
	})
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleGet(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, err := common.RequireStringArg(request.GetArguments(), "name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	content, err := sc.Store().Read(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading file %s: %v", name, err)), nil
	}
	return mcp.NewToolResultText(content), nil
}

func handleRewrite(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	name, err := common.RequireStringArg(args, "name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	instruction, err := common.RequireStringArg(args, "instruction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !sc.Config().HasGeminiKey() {
		return mcp.NewToolResultError("Gemini API key not set in environment variables. Please set GEMINI_API_KEY in the .env file."), nil
	}

	original, err := sc.Store().Read(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading file %s: %v", name, err)), nil
	}

	result, err := sc.Rewriter().Rewrite(ctx, rewrite.Request{
		TemplateName: name,
		Original:     original,
		Instruction:  instruction,
	})
	var invalid *rewrite.InvalidOutputError
	switch {
	case err == nil:
		return mcp.NewToolResultText(fmt.Sprintf("Saved AI-modified template as: %s\n\n%s", result.SavedAs, result.HTML)), nil
	case errors.Is(err, rewrite.ErrSaveFailed):
		return mcp.NewToolResultError(fmt.Sprintf("Error saving the modified HTML copy: %v", err)), nil
	case errors.As(err, &invalid):
		return mcp.NewToolResultError(invalid.Error()), nil
	case errors.Is(err, rewrite.ErrGenerationFailed):
		return mcp.NewToolResultError(fmt.Sprintf("Error calling Gemini API: %v", err)), nil
	default:
		return mcp.NewToolResultError(err.Error()), nil
	}
}

func handleSend(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	name, err := common.RequireStringArg(args, "name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	channel, err := delivery.ParseChannel(common.StringArg(args, "channel"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	html, err := sc.Store().Read(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error reading file %s: %v", name, err)), nil
	}

	subject := common.StringArg(args, "subject")
	if subject == "" {
		subject = "Email from " + name
	}

	if channel == delivery.ChannelGmail && !sc.GmailAuthorized() {
		if _, authErr := sc.Authenticator(); authErr == nil {
			if err := sc.AuthorizeGmail(ctx, nil); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Gmail authentication failed: %v\n\n%s", err, google.Troubleshooting)), nil
			}
		}
	}

	receipt, err := sc.Delivery().Send(ctx, channel, delivery.Message{
		To:       common.StringArg(args, "to"),
		Subject:  subject,
		HTML:     html,
		Template: name,
		Origin:   "mcp",
	})
	if err != nil {
		return mcp.NewToolResultError(sendErrorText(sc, err)), nil
	}

	if receipt.Channel == delivery.ChannelGmail {
		return mcp.NewToolResultText(fmt.Sprintf("Email sent successfully! Message ID: %s", receipt.MessageID)), nil
	}
	return mcp.NewToolResultText("Email successfully sent via n8n workflow!"), nil
}

func sendErrorText(sc *server.ServerContext, err error) string {
	var statusErr *webhook.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("Failed to send email. n8n responded with status code %d: %s", statusErr.Code, statusErr.Body)
	case errors.Is(err, delivery.ErrGmailNotAuthorized):
		if _, authErr := sc.Authenticator(); errors.Is(authErr, google.ErrCredentialsMissing) {
			return google.SetupInstructions(sc.Config().CredentialsFile)
		}
		return err.Error()
	default:
		return err.Error()
	}
}
