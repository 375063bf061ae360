package local

import "strconv"

// GraphListKey is the key of the JSON array of graph ids for prefix.
func GraphListKey(prefix string) string {
	return prefix + "_provenance_graphs"
}

// DescriptorKey is the key of the serialized descriptor of graph id.
func DescriptorKey(prefix, id string) string {
	return prefix + "_provenance_graph." + id
}

func graphPrefix(id string) string {
	return "graph" + id + "."
}

func nodesKey(id string) string {
	return graphPrefix(id) + "nodes"
}

func edgesKey(id string) string {
	return graphPrefix(id) + "edges"
}

func currentKey(id string) string {
	return graphPrefix(id) + "current"
}

func nodeKey(id string, nid int64) string {
	return graphPrefix(id) + "node." + strconv.FormatInt(nid, 10)
}

func edgeKey(id string, eid int64) string {
	return graphPrefix(id) + "edge." + strconv.FormatInt(eid, 10)
}
