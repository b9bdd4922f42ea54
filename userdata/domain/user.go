package domain

type Statistics struct {
	Average    int64 `json:"average"`
	AverageOf5 int64 `json:"averageOf5"`
}

// UserRecord é o documento do usuário como o storage o guarda.
type UserRecord struct {
	Email      string
	Settings   map[string]any
	Statistics Statistics
	Times      []int64
}

// UserInfo é a projeção devolvida por GET /api/user.
type UserInfo struct {
	Email      string         `json:"email"`
	Settings   map[string]any `json:"settings"`
	Statistics Statistics     `json:"statistics"`
	Times      []int64        `json:"times"`
}

// Project copia só os campos públicos do registro. Coleções nil viram vazias
// para o JSON nunca trazer null.
func (u UserRecord) Project() UserInfo {
	info := UserInfo{
		Email:      u.Email,
		Settings:   make(map[string]any, len(u.Settings)),
		Statistics: u.Statistics,
		Times:      make([]int64, len(u.Times)),
	}
	for k, v := range u.Settings {
		info.Settings[k] = v
	}
	copy(info.Times, u.Times)
	return info
}
