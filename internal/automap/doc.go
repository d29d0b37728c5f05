// Package automap places newly discovered topics into the namespace tree
// without operator intervention.
//
// Resolution runs in two phases. Custom rules go first: regular expressions
// over the (prefix-stripped) topic whose capture groups substitute into a
// namespace path template. When no rule matches, the structural phase walks
// the composed namespace structure and scores every node by how many
// leading topic segments it covers; the last topic segment always names the
// data point and never participates in placement. Mappings below the
// configured confidence floor are rejected with an AutoMappingFailedEvent
// carrying the closest candidates as suggestions.
package automap
