package mcp

// Tool names double as the policy resource names, so a policy file
// written for any other frontend of the same graph keeps working here.
const (
	toolAddContent          = "add_content"
	toolSearchEntities      = "search_entities"
	toolSearchRelationships = "search_relationships"
	toolGetContentItems     = "get_content_items"
	toolGetRelationship     = "get_relationship"
	toolDeleteContentItem   = "delete_content_item"
	toolDeleteRelationship  = "delete_relationship"
	toolClearNamespace      = "clear_namespace"
	toolGetStatus           = "get_status"
)

var toolDescriptions = map[string]string{
	toolAddContent: "Queue content for asynchronous ingestion into the knowledge graph. " +
		"Returns immediately with the task id; extraction and persistence happen in the background. " +
		"Within one namespace submissions are processed strictly in order.",
	toolSearchEntities: "Search graph entities by name or summary. " +
		"Omitting namespaces searches every namespace; an empty query returns the most recent entities.",
	toolSearchRelationships: "Search relationships by predicate or supporting fact. " +
		"Omitting namespaces searches every namespace.",
	toolGetContentItems: "List ingested content items, newest first.",
	toolGetRelationship: "Fetch one relationship by id.",
	toolDeleteContentItem: "Delete a content item together with its relationships. " +
		"Entities mentioned only by this item are removed as well.",
	toolDeleteRelationship: "Delete one relationship by id. The connected entities are kept.",
	toolClearNamespace: "Remove all content, entities, and relationships in the given namespaces. " +
		"With no namespaces only the server's default namespace is cleared.",
	toolGetStatus: "Report server health: graph connectivity, known namespaces, ingestion queue depth, and process vitals.",
}

func serverInstructions() string {
	return "engramd is an agent memory service backed by a knowledge graph. " +
		"Use add_content to store observations; ingestion is asynchronous, so new " +
		"entities appear in search results shortly after the call returns. " +
		"Partition unrelated agents or tenants with the namespace argument. " +
		"Search tools accept free-text queries and an optional namespace list."
}
