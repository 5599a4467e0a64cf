package driver

// Every versioned edge carries branch, status, from and to. Times are stored as
// fixed-width UTC strings so they compare lexicographically.
const (
	DiffPathsQuery = `
		MATCH (root:Root)<-[np:IS_PART_OF]-(n:Node)
		WHERE np.branch IN $branches
			AND np.from < $to_time
			AND (size($namespaces_include) = 0 OR n.namespace IN $namespaces_include)
			AND NOT n.namespace IN $namespaces_exclude
			AND (size($kinds_include) = 0 OR n.kind IN $kinds_include)
			AND NOT n.kind IN $kinds_exclude
		OPTIONAL MATCH (n)-[fe:HAS_ATTRIBUTE|IS_RELATED]-(f)
		WHERE fe.branch IN $branches AND fe.from < $to_time
		OPTIONAL MATCH (f)-[peer_edge:IS_RELATED]-(peer:Node)
		WHERE type(fe) = "IS_RELATED" AND peer.uuid <> n.uuid
			AND peer_edge.branch IN $branches AND peer_edge.from < $to_time
		OPTIONAL MATCH (f)-[pe]->(prop)
		WHERE type(pe) IN $property_types AND pe.branch IN $branches AND pe.from < $to_time
		WITH root, n, np, f, fe, peer, pe, prop
		WHERE np.from >= $from_time
			OR fe.from >= $from_time
			OR pe.from >= $from_time
			OR np.to >= $from_time
			OR fe.to >= $from_time
			OR pe.to >= $from_time
			OR [n.uuid, f.name] IN $field_specifiers
		RETURN
			root.uuid AS root_id,
			n.uuid AS node_id,
			n.kind AS node_kind,
			np.from AS node_changed_at,
			np.status AS node_status,
			CASE type(fe) WHEN "HAS_ATTRIBUTE" THEN "attribute" WHEN "IS_RELATED" THEN "relationship" ELSE "" END AS field_type,
			f.uuid AS field_id,
			f.name AS field_name,
			fe.from AS field_changed_at,
			fe.status AS field_status,
			peer.uuid AS peer_id,
			peer.kind AS peer_kind,
			type(pe) AS property_type,
			coalesce(prop.value, prop.uuid) AS property_value,
			prop.kind AS property_peer_kind,
			pe.from AS property_changed_at,
			pe.status AS property_status,
			coalesce(pe.branch, fe.branch, np.branch) AS deepest_branch
		ORDER BY node_id, field_name, property_changed_at
	`

	GetBranchQuery = `
		MATCH (b:Branch {name: $name})
		RETURN b.name AS name, b.created_at AS created_at, b.origin_branch AS origin_branch, b.is_default AS is_default
	`

	GetNodeLabelsQuery = `
		UNWIND $requests AS req
		UNWIND req.ids AS id
		MATCH (n:Node {uuid: id})
		OPTIONAL MATCH (n)-[ae:HAS_ATTRIBUTE]->(:Attribute {name: $label_attribute})-[ve:HAS_VALUE]->(v)
		WHERE ae.branch IN req.branches AND ae.status = "active" AND ae.to IS NULL
			AND ve.branch IN req.branches AND ve.status = "active" AND ve.to IS NULL
		RETURN req.branch AS branch, id AS id, head(collect(v.value)) AS label
	`

	GetParentsQuery = `
		UNWIND $ids AS id
		MATCH (n:Node {uuid: id})-[e1:IS_RELATED]-(r:Relationship {name: $identifier})-[e2:IS_RELATED]-(p:Node)
		WHERE p.uuid <> id
			AND e1.branch IN $branches AND e1.status = "active" AND e1.to IS NULL
			AND e2.branch IN $branches AND e2.status = "active" AND e2.to IS NULL
		RETURN id AS id, p.uuid AS parent_id, p.kind AS parent_kind
	`

	GetOpenProposedChangesQuery = `
		MATCH (pc:ProposedChange {source_branch: $source_branch})
		WHERE pc.state = "open"
		RETURN pc.uuid AS uuid
		ORDER BY uuid
	`

	// diff cache

	SaveDiffRootQuery = `
		MERGE (r:DiffRoot {uuid: $uuid})
		SET r.base_branch = $base_branch,
			r.diff_branch = $diff_branch,
			r.from_time = $from_time,
			r.to_time = $to_time,
			r.tracking_id = $tracking_id,
			r.payload = $payload
		RETURN r.uuid AS uuid
	`

	SaveDiffNodesQuery = `
		MATCH (r:DiffRoot {uuid: $root_uuid})
		UNWIND $nodes AS node
		MERGE (r)-[:HAS_NODE]->(n:DiffNode {uuid: node.uuid, root_uuid: $root_uuid})
		SET n.kind = node.kind,
			n.action = node.action,
			n.path_identifier = node.path_identifier
		RETURN count(n) AS saved
	`

	SaveDiffConflictsQuery = `
		MATCH (r:DiffRoot {uuid: $root_uuid})
		UNWIND $conflicts AS c
		MERGE (r)-[:HAS_CONFLICT]->(dc:DiffConflict {uuid: c.uuid, root_uuid: $root_uuid})
		SET dc.path_identifier = c.path_identifier,
			dc.selected_branch = c.selected_branch
		RETURN count(dc) AS saved
	`

	GetDiffRootsQuery = `
		MATCH (r:DiffRoot {base_branch: $base_branch, diff_branch: $diff_branch, tracking_id: ""})
		WHERE r.from_time >= $from_time AND r.to_time <= $to_time
		OPTIONAL MATCH (r)-[:HAS_CONFLICT]->(dc:DiffConflict)
		RETURN r.payload AS payload, r.from_time AS from_time, collect([dc.uuid, dc.selected_branch]) AS selections
		ORDER BY from_time
	`

	GetDiffRootByTrackingIDQuery = `
		MATCH (r:DiffRoot {base_branch: $base_branch, diff_branch: $diff_branch, tracking_id: $tracking_id})
		OPTIONAL MATCH (r)-[:HAS_CONFLICT]->(dc:DiffConflict)
		RETURN r.payload AS payload, r.to_time AS to_time, collect([dc.uuid, dc.selected_branch]) AS selections
		ORDER BY to_time DESC
		LIMIT 1
	`

	DeleteDiffRootsQuery = `
		MATCH (r:DiffRoot)
		WHERE r.uuid IN $uuids
		OPTIONAL MATCH (r)-[:HAS_NODE|HAS_CONFLICT]->(child)
		DETACH DELETE r, child
	`

	UpdateConflictSelectionQuery = `
		MATCH (dc:DiffConflict {uuid: $uuid})
		SET dc.selected_branch = $selected_branch
		RETURN count(dc) AS updated
	`
)
