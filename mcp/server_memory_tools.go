package mcp

import (
	"context"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/engramd/api"
	"pkt.systems/engramd/internal/memory"
	"pkt.systems/engramd/namespaces"
)

type addContentToolInput struct {
	Name        string `json:"name" jsonschema:"Label for the content item"`
	Content     string `json:"content" jsonschema:"Raw content to ingest"`
	ID          string `json:"id,omitempty" jsonschema:"Optional content item id; generated when omitted"`
	Namespace   string `json:"namespace,omitempty" jsonschema:"Namespace (defaults to server default namespace)"`
	Kind        string `json:"kind,omitempty" jsonschema:"Content kind: text, structured, or conversational (defaults to text)"`
	Description string `json:"description,omitempty" jsonschema:"Optional free-form context for the item"`
}

type addContentToolOutput struct {
	TaskID    string `json:"task_id"`
	Namespace string `json:"namespace"`
	Status    string `json:"status"`
}

func (s *server) handleAddContentTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input addContentToolInput) (*mcpsdk.CallToolResult, addContentToolOutput, error) {
	id, err := s.memory.SubmitContent(ctx, memory.SubmitRequest{
		ID:          input.ID,
		Namespace:   input.Namespace,
		Name:        input.Name,
		Body:        input.Content,
		Kind:        input.Kind,
		Description: input.Description,
	})
	if err != nil {
		return nil, addContentToolOutput{}, err
	}
	ns, err := namespaces.Normalize(input.Namespace, s.memory.DefaultNamespace())
	if err != nil {
		return nil, addContentToolOutput{}, err
	}
	return nil, addContentToolOutput{
		TaskID:    id,
		Namespace: ns,
		Status:    "queued for processing",
	}, nil
}

type searchEntitiesToolInput struct {
	Query      string   `json:"query,omitempty" jsonschema:"Free-text search over entity names and summaries; empty returns most recent"`
	EntityType string   `json:"entity_type,omitempty" jsonschema:"Keep only entities carrying this label"`
	Namespaces []string `json:"namespaces,omitempty" jsonschema:"Namespaces to search (defaults to all)"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Maximum results (default 20)"`
}

type searchEntitiesToolOutput struct {
	Entities []api.Entity `json:"entities"`
}

func (s *server) handleSearchEntitiesTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input searchEntitiesToolInput) (*mcpsdk.CallToolResult, searchEntitiesToolOutput, error) {
	ents, err := s.memory.SearchEntities(ctx, memory.EntitySearch{
		Text:       input.Query,
		Namespaces: input.Namespaces,
		Limit:      input.Limit,
		EntityType: input.EntityType,
	})
	if err != nil {
		return nil, searchEntitiesToolOutput{}, err
	}
	if ents == nil {
		ents = []api.Entity{}
	}
	return nil, searchEntitiesToolOutput{Entities: ents}, nil
}

type searchRelationshipsToolInput struct {
	Query          string   `json:"query,omitempty" jsonschema:"Free-text search over relationship names and facts; empty returns most recent"`
	CenterEntityID string   `json:"center_entity_id,omitempty" jsonschema:"Keep only relationships with this entity as source or target"`
	Namespaces     []string `json:"namespaces,omitempty" jsonschema:"Namespaces to search (defaults to all)"`
	Limit          int      `json:"limit,omitempty" jsonschema:"Maximum results (default 20)"`
}

type searchRelationshipsToolOutput struct {
	Relationships []api.Relationship `json:"relationships"`
}

func (s *server) handleSearchRelationshipsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input searchRelationshipsToolInput) (*mcpsdk.CallToolResult, searchRelationshipsToolOutput, error) {
	rels, err := s.memory.SearchRelationships(ctx, memory.RelationshipSearch{
		Text:           input.Query,
		Namespaces:     input.Namespaces,
		Limit:          input.Limit,
		CenterEntityID: input.CenterEntityID,
	})
	if err != nil {
		return nil, searchRelationshipsToolOutput{}, err
	}
	if rels == nil {
		rels = []api.Relationship{}
	}
	return nil, searchRelationshipsToolOutput{Relationships: rels}, nil
}

type getContentItemsToolInput struct {
	Namespaces []string `json:"namespaces,omitempty" jsonschema:"Namespaces to list (defaults to all)"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Maximum results (default 20)"`
}

type getContentItemsToolOutput struct {
	Items []api.ContentItem `json:"items"`
}

func (s *server) handleGetContentItemsTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input getContentItemsToolInput) (*mcpsdk.CallToolResult, getContentItemsToolOutput, error) {
	items, err := s.memory.ContentItems(ctx, input.Namespaces, input.Limit)
	if err != nil {
		return nil, getContentItemsToolOutput{}, err
	}
	if items == nil {
		items = []api.ContentItem{}
	}
	return nil, getContentItemsToolOutput{Items: items}, nil
}

type getRelationshipToolInput struct {
	ID string `json:"id" jsonschema:"Relationship id"`
}

type getRelationshipToolOutput struct {
	Relationship api.Relationship `json:"relationship"`
}

func (s *server) handleGetRelationshipTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input getRelationshipToolInput) (*mcpsdk.CallToolResult, getRelationshipToolOutput, error) {
	rel, err := s.memory.Relationship(ctx, input.ID)
	if err != nil {
		return nil, getRelationshipToolOutput{}, err
	}
	return nil, getRelationshipToolOutput{Relationship: rel}, nil
}

type deleteContentItemToolInput struct {
	ID string `json:"id" jsonschema:"Content item id"`
}

type deleteContentItemToolOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (s *server) handleDeleteContentItemTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input deleteContentItemToolInput) (*mcpsdk.CallToolResult, deleteContentItemToolOutput, error) {
	if err := s.memory.DeleteContentItem(ctx, input.ID); err != nil {
		return nil, deleteContentItemToolOutput{}, err
	}
	return nil, deleteContentItemToolOutput{ID: strings.TrimSpace(input.ID), Deleted: true}, nil
}

type deleteRelationshipToolInput struct {
	ID string `json:"id" jsonschema:"Relationship id"`
}

type deleteRelationshipToolOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (s *server) handleDeleteRelationshipTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input deleteRelationshipToolInput) (*mcpsdk.CallToolResult, deleteRelationshipToolOutput, error) {
	if err := s.memory.DeleteRelationship(ctx, input.ID); err != nil {
		return nil, deleteRelationshipToolOutput{}, err
	}
	return nil, deleteRelationshipToolOutput{ID: strings.TrimSpace(input.ID), Deleted: true}, nil
}

type clearNamespaceToolInput struct {
	Namespaces []string `json:"namespaces,omitempty" jsonschema:"Namespaces to clear (defaults to the server default namespace)"`
}

type clearNamespaceToolOutput struct {
	Cleared []string `json:"cleared"`
}

func (s *server) handleClearNamespaceTool(ctx context.Context, _ *mcpsdk.CallToolRequest, input clearNamespaceToolInput) (*mcpsdk.CallToolResult, clearNamespaceToolOutput, error) {
	cleared, err := s.memory.ClearNamespaces(ctx, input.Namespaces)
	if err != nil {
		return nil, clearNamespaceToolOutput{}, err
	}
	return nil, clearNamespaceToolOutput{Cleared: cleared}, nil
}

type getStatusToolInput struct{}

func (s *server) handleGetStatusTool(ctx context.Context, _ *mcpsdk.CallToolRequest, _ getStatusToolInput) (*mcpsdk.CallToolResult, api.Status, error) {
	return nil, s.memory.Status(ctx), nil
}
