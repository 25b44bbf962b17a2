package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Content block type discriminators.
const (
	BlockTypeText       = "text"
	BlockTypeImage      = "image"
	BlockTypeDocument   = "document"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
	BlockTypeThinking   = "thinking"
)

// ContentBlock is one typed unit of message content, discriminated by Type.
// Only the fields belonging to the active variant are populated.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image, document
	Source *Source `json:"source,omitempty"`
	Title  *string `json:"title,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string             `json:"tool_use_id,omitempty"`
	Content   *ToolResultContent `json:"content,omitempty"`
	IsError   *bool              `json:"is_error,omitempty"`

	// thinking
	Thinking  string  `json:"thinking,omitempty"`
	Signature *string `json:"signature,omitempty"`

	// A cache_control marker means "insert a cache boundary immediately
	// after this block"; it is never a property of the content itself.
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// CacheControl marks a prompt-cache boundary. Only presence matters.
type CacheControl struct {
	Type string `json:"type"`
}

// Source is the encoded payload of an image or document block.
type Source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// decode returns the raw bytes of a base64 source.
func (s *Source) decode() ([]byte, error) {
	if s.Type != "base64" {
		return nil, fmt.Errorf("unsupported source type %q (only base64 is supported)", s.Type)
	}
	raw, err := base64.StdEncoding.DecodeString(s.Data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 data: %w", err)
	}
	return raw, nil
}

var imageFormats = map[string]types.ImageFormat{
	"image/jpeg": types.ImageFormatJpeg,
	"image/png":  types.ImageFormatPng,
	"image/gif":  types.ImageFormatGif,
	"image/webp": types.ImageFormatWebp,
}

var documentFormats = map[string]types.DocumentFormat{
	"application/pdf":    types.DocumentFormatPdf,
	"text/csv":           types.DocumentFormatCsv,
	"application/msword": types.DocumentFormatDoc,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": types.DocumentFormatDocx,
	"application/vnd.ms-excel": types.DocumentFormatXls,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": types.DocumentFormatXlsx,
	"text/html":     types.DocumentFormatHtml,
	"text/plain":    types.DocumentFormatTxt,
	"text/markdown": types.DocumentFormatMd,
}

// cachePointBlock is the positional cache boundary inserted after a block
// carrying a cache_control marker.
func cachePointBlock() types.ContentBlock {
	return &types.ContentBlockMemberCachePoint{
		Value: types.CachePointBlock{Type: types.CachePointTypeDefault},
	}
}

// convertBlock translates one client content block into its backend
// representation. The result is a group of one or more backend blocks: the
// translated block, a cache point when the block carries a cache_control
// marker, and for documents a trailing single-space text block (the backend
// rejects documents not followed by text).
func convertBlock(block ContentBlock) ([]types.ContentBlock, error) {
	var group []types.ContentBlock

	switch block.Type {
	case BlockTypeText:
		group = append(group, &types.ContentBlockMemberText{Value: block.Text})

	case BlockTypeImage:
		image, err := toImageBlock(block.Source)
		if err != nil {
			return nil, err
		}
		group = append(group, &types.ContentBlockMemberImage{Value: *image})

	case BlockTypeDocument:
		doc, err := toDocumentBlock(block.Source, block.Title)
		if err != nil {
			return nil, err
		}
		group = append(group, &types.ContentBlockMemberDocument{Value: *doc})

	case BlockTypeToolUse:
		input, err := toDocument(block.Input)
		if err != nil {
			return nil, fmt.Errorf("tool_use input: %w", err)
		}
		group = append(group, &types.ContentBlockMemberToolUse{
			Value: types.ToolUseBlock{
				ToolUseId: aws.String(block.ID),
				Name:      aws.String(block.Name),
				Input:     input,
			},
		})

	case BlockTypeToolResult:
		result := types.ToolResultBlock{
			ToolUseId: aws.String(block.ToolUseID),
			Content:   toToolResultContent(block.Content),
		}
		if block.IsError != nil && *block.IsError {
			result.Status = types.ToolResultStatusError
		}
		group = append(group, &types.ContentBlockMemberToolResult{Value: result})

	case BlockTypeThinking:
		reasoning := types.ReasoningTextBlock{Text: aws.String(block.Thinking)}
		if block.Signature != nil {
			reasoning.Signature = block.Signature
		}
		group = append(group, &types.ContentBlockMemberReasoningContent{
			Value: &types.ReasoningContentBlockMemberReasoningText{Value: reasoning},
		})

	default:
		return nil, fmt.Errorf("unsupported content block type %q", block.Type)
	}

	if block.CacheControl != nil {
		group = append(group, cachePointBlock())
	}

	// The separator goes after the cache point so the boundary stays
	// adjacent to the document it belongs to.
	if block.Type == BlockTypeDocument {
		group = append(group, &types.ContentBlockMemberText{Value: " "})
	}

	return group, nil
}

// toImageBlock converts a base64 image source to a backend image block.
func toImageBlock(source *Source) (*types.ImageBlock, error) {
	if source == nil {
		return nil, fmt.Errorf("image block requires a source")
	}
	format, ok := imageFormats[source.MediaType]
	if !ok {
		return nil, fmt.Errorf("unsupported image media type %q", source.MediaType)
	}
	raw, err := source.decode()
	if err != nil {
		return nil, err
	}
	return &types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: raw},
	}, nil
}

// toDocumentBlock converts a base64 document source to a backend document
// block. The backend requires a name; the title is used when present.
func toDocumentBlock(source *Source, title *string) (*types.DocumentBlock, error) {
	if source == nil {
		return nil, fmt.Errorf("document block requires a source")
	}
	format, ok := documentFormats[source.MediaType]
	if !ok {
		return nil, fmt.Errorf("unsupported document media type %q", source.MediaType)
	}
	raw, err := source.decode()
	if err != nil {
		return nil, err
	}

	name := "document"
	if title != nil && *title != "" {
		name = *title
	}

	return &types.DocumentBlock{
		Format: format,
		Name:   aws.String(name),
		Source: &types.DocumentSourceMemberBytes{Value: raw},
	}, nil
}

// toDocument parses raw JSON into a backend document. Empty input becomes an
// empty object so the backend always receives a valid document.
func toDocument(raw json.RawMessage) (document.Interface, error) {
	if len(raw) == 0 {
		return document.NewLazyDocument(map[string]any{}), nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return document.NewLazyDocument(value), nil
}
