package colltype

// registerBuiltins registers the built-in rank types.
// Called once by Global() during singleton initialization.
func registerBuiltins(r *Registry) {
	for _, def := range builtins {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

var builtins = []RankTypeDef{
	{
		Type:        "list",
		DisplayName: "List",
		Description: "Ordered collection with free-form element identifiers",
	},
	{
		Type:        "paired",
		DisplayName: "Paired",
		Description: "Exactly two elements identified as forward and reverse",
		Identifiers: []string{"forward", "reverse"},
	},
	{
		Type:        "record",
		DisplayName: "Record",
		Description: "Heterogeneous collection whose identifiers are declared by fields",
	},
}
