package catalog

// Categories are the topics offered for browsing.
var Categories = []string{
	"animal",
	"children",
	"classics",
	"countries",
	"crime",
	"education",
	"fiction",
	"geography",
	"history",
	"literature",
	"law",
	"music",
	"periodicals",
	"psychology",
	"philosophy",
	"religion",
	"romance",
	"science",
}

// IsCategory reports whether name is one of Categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
