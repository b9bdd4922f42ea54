package domain

// EndpointKind é uma das três categorias fixas de mutação.
type EndpointKind string

const (
	KindSettings   EndpointKind = "settings"
	KindStatistics EndpointKind = "statistics"
	KindTimes      EndpointKind = "times"
)

// Kinds lista as categorias na ordem em que as rotas são registradas.
func Kinds() []EndpointKind {
	return []EndpointKind{KindSettings, KindStatistics, KindTimes}
}

func (k EndpointKind) Valid() bool {
	switch k {
	case KindSettings, KindStatistics, KindTimes:
		return true
	}
	return false
}
