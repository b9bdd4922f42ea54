package domain

// Mutation é o payload já validado e normalizado de uma requisição de update.
// As únicas implementações são SettingsUpdate, StatisticsUpdate e TimeEntry.
type Mutation interface {
	Kind() EndpointKind
	mutation()
}

// Chaves aceitas em settings.
const (
	SettingBackgroundColor = "backgroundColor"
	SettingCounter         = "counter"
)

// SettingsUpdate sobrescreve uma única chave de settings.
// Value é string para backgroundColor e int64 para counter.
type SettingsUpdate struct {
	Key   string
	Value any
}

// StatisticsUpdate substitui average e averageOf5 juntos.
type StatisticsUpdate struct {
	Statistics Statistics
}

// TimeEntry acrescenta um tempo ao histórico.
type TimeEntry struct {
	Time int64
}

func (SettingsUpdate) Kind() EndpointKind   { return KindSettings }
func (StatisticsUpdate) Kind() EndpointKind { return KindStatistics }
func (TimeEntry) Kind() EndpointKind        { return KindTimes }

func (SettingsUpdate) mutation()   {}
func (StatisticsUpdate) mutation() {}
func (TimeEntry) mutation()        {}
