// Package local implements the synchronous key/value graph backend.
//
// Every mutation mirrors the graph's id index lists and the touched node or
// edge payload into a KV store in one atomic batch. Key layout:
//
//	${prefix}_provenance_graphs        JSON array of graph ids
//	${prefix}_provenance_graph.${id}   serialized graph descriptor
//	graph${id}.nodes                   JSON array of node ids
//	graph${id}.edges                   JSON array of edge ids
//	graph${id}.node.${nid}             serialized node dump
//	graph${id}.edge.${eid}             serialized edge dump
//	graph${id}.current                 {"act":..,"lastAction":..}
//
// SQLiteKV is the durable store; SessionKV lives only as long as the
// process.
package local
