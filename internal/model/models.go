package model

// All 返回需要 AutoMigrate 的模型
func All() []interface{} {
	return []interface{}{
		&Partner{},
		&Order{},
		&Settlement{},
		&SettlementOrder{},
		&LiveStream{},
		&ChatMessage{},
		&Notification{},
	}
}
