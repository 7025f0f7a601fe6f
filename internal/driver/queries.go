package driver

// Templates take label and property names through fmt verbs. Every name is
// checked against the identifier pattern before it reaches one of these.
const (
	memgraphUniqueConstraintQuery = "CREATE CONSTRAINT ON (n:%[1]s) ASSERT n.%[2]s IS UNIQUE;"
	neo4jUniqueConstraintQuery    = "CREATE CONSTRAINT %[1]s_%[2]s_unique IF NOT EXISTS FOR (n:%[1]s) REQUIRE n.%[2]s IS UNIQUE"

	// CreateNodeQuery returns no row when the key is already taken.
	CreateNodeQuery = `
		OPTIONAL MATCH (existing:%[1]s {%[2]s: $key})
		WITH existing WHERE existing IS NULL
		CREATE (n:%[1]s)
		SET n = $props
		RETURN n.%[2]s AS key
	`

	MergeNodeQuery = `
		MERGE (n:%[1]s {%[2]s: $key})
		ON CREATE SET n += $props
		RETURN n.%[2]s AS key
	`

	UpdateNodeQuery = `
		MATCH (n:%[1]s {%[2]s: $key})
		SET n += $props
		RETURN count(n) AS matched
	`

	CreateRelationshipQuery = `
		MATCH (a:%[1]s {%[2]s: $from})
		MATCH (b:%[3]s {%[4]s: $to})
		CREATE (a)-[r:%[5]s]->(b)
		RETURN count(r) AS created
	`

	DocumentExistsQuery = `
		MATCH (d:Document {title: $title})
		RETURN count(d) AS found
	`

	DocumentHistoryQuery = `
		MATCH (d:Document {title: $title})-[:CONTAINS]->(r:Revision)
		OPTIONAL MATCH (r)-[:CHANGED_TO]->(c:Content)
		RETURN r.revision_id AS revision_id, r.timestamp AS timestamp, c.hash AS hash
		ORDER BY revision_id ASC
	`

	RevisionIDsQuery = `
		MATCH (r:Revision)
		RETURN r.revision_id AS revision_id
		ORDER BY revision_id ASC
	`

	PurgeQuery = `
		MATCH (n)
		DETACH DELETE n
	`
)
