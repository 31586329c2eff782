package model

// AssetRow is the persisted shape of a reportable asset.
type AssetRow struct {
	Code     string `gorm:"primaryKey;type:varchar(255);uniqueIndex:ux_assets_code_cftc_code,priority:1" json:"code"`
	Name     string `gorm:"type:varchar(255);not null" json:"name"`
	CFTCCode string `gorm:"column:cftc_code;type:varchar(255);not null;uniqueIndex:ux_assets_code_cftc_code,priority:2" json:"cftc_code"`
}

// TableName controls the exact table name for assets.
func (AssetRow) TableName() string {
	return "assets"
}

// ReportRow is the persisted shape of one weekly report: the report
// document serialized whole into report_data, unique per asset and date.
type ReportRow struct {
	ReportID   uint   `gorm:"column:report_id;primaryKey;autoIncrement" json:"report_id"`
	AssetCode  string `gorm:"column:asset_code;type:varchar(255);uniqueIndex:ux_cot_reports_asset_date,priority:1" json:"asset_code"`
	ReportDate string `gorm:"column:report_date;type:date;uniqueIndex:ux_cot_reports_asset_date,priority:2" json:"report_date"`
	ReportData string `gorm:"column:report_data;type:json" json:"report_data"`

	// Belongs to the asset reference row.
	Asset *AssetRow `gorm:"foreignKey:AssetCode;references:Code" json:"asset,omitempty"`
}

// TableName controls the exact table name for reports.
func (ReportRow) TableName() string {
	return "cot_reports"
}
