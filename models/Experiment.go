package models

// Experiment 栅格记录的上级试验
type Experiment struct {
	ID      int64  `gorm:"primary_key;autoIncrement" json:"id"`
	Expcode string `gorm:"type:varchar(64)" json:"expcode"`
	Title   string `gorm:"type:varchar(255)" json:"title"`
}

func (Experiment) TableName() string {
	return "experiment"
}
