package models

// Category 代表拍賣商品的分類
type Category struct {
	Key  string
	Name string
}

// Categories 是可使用的商品分類清單
var Categories = []Category{
	{Key: "designer_toys", Name: "Designer Toys"},
	{Key: "vinyl_figures", Name: "Vinyl Figures"},
	{Key: "resin_figures", Name: "Resin Figures"},
	{Key: "blind_box", Name: "Blind Box Toys"},
	{Key: "anime_figures", Name: "Anime Figures"},
	{Key: "movie_game_collectibles", Name: "Movie & Game Collectibles"},
	{Key: "robot_mecha", Name: "Robot & Mecha Toys"},
	{Key: "soft_vinyl", Name: "Soft Vinyl (Sofubi)"},
	{Key: "kaiju_monsters", Name: "Kaiju & Monsters"},
	{Key: "diy_custom", Name: "DIY & Custom Toys"},
	{Key: "retro_vintage", Name: "Retro & Vintage Toys"},
	{Key: "limited_edition", Name: "Limited Edition & Exclusive"},
	{Key: "gunpla_models", Name: "Gunpla & Mecha Models"},
	{Key: "plastic_models", Name: "Plastic Model Kits"},
}

// ValidCategory 檢查分類是否在清單內
func ValidCategory(key string) bool {
	for _, c := range Categories {
		if c.Key == key {
			return true
		}
	}
	return false
}
