package hierarchy

// DefaultConfiguration returns the system-defined ISA-95 style template:
// Enterprise / Site / Area / Line / Cell. Only Enterprise is required; the
// Enterprise level itself does not accept topics.
func DefaultConfiguration() *HierarchyConfiguration {
	return &HierarchyConfiguration{
		ID:              "isa95-default",
		Name:            "ISA-95 Default",
		IsActive:        true,
		IsSystemDefined: true,
		Nodes: []HierarchyNode{
			{ID: "enterprise", Name: "Enterprise", Order: 0, Required: true, AllowTopics: false, Description: "Top-level enterprise"},
			{ID: "site", Name: "Site", Order: 1, AllowTopics: true, ParentID: "enterprise", Description: "Physical site or plant"},
			{ID: "area", Name: "Area", Order: 2, AllowTopics: true, ParentID: "site", Description: "Production area"},
			{ID: "line", Name: "Line", Order: 3, AllowTopics: true, ParentID: "area", Description: "Production line"},
			{ID: "cell", Name: "Cell", Order: 4, AllowTopics: true, ParentID: "line", Description: "Work cell or unit"},
		},
	}
}
