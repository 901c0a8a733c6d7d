// Command admin manages user roles from the command line.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/models"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  admin promote <user_id> [role]   - Grant admin (or the given role) to a user")
		fmt.Println("  admin demote <user_id>           - Reset a user to the user role")
		fmt.Println("  admin list-admins                - List admins and moderators")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	switch os.Args[1] {
	case "promote":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin promote <user_id> [role]")
			os.Exit(1)
		}
		role := models.RoleAdmin
		if len(os.Args) > 3 {
			parsed, err := models.ParseRole(os.Args[3])
			if err != nil {
				log.Fatalf("Invalid role: %v", err)
			}
			role = parsed
		}
		setRole(db, os.Args[2], role)

	case "demote":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin demote <user_id>")
			os.Exit(1)
		}
		setRole(db, os.Args[2], models.RoleUser)

	case "list-admins":
		listAdmins(db)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func setRole(db *gorm.DB, userID string, role models.Role) {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Printf("User with ID %s not found\n", userID)
			os.Exit(1)
		}
		log.Fatalf("Database error: %v", err)
	}

	if user.Role == role {
		fmt.Printf("User %s (ID: %d) already has role %s\n", user.Username, user.ID, role)
		return
	}

	previous := user.Role
	if err := db.Model(&user).Update("role", role).Error; err != nil {
		log.Fatalf("Failed to update role: %v", err)
	}

	fmt.Printf("Changed %s (ID: %d) from %s to %s\n", user.Username, user.ID, previous, role)
}

func listAdmins(db *gorm.DB) {
	var staff []models.User
	err := db.Where("role IN ?", []models.Role{models.RoleAdmin, models.RoleModerator}).
		Order("role, id").Find(&staff).Error
	if err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}

	if len(staff) == 0 {
		fmt.Println("No admins found in the system")
		return
	}

	fmt.Println("Current staff:")
	fmt.Println("-------------------------------------")
	for _, u := range staff {
		fmt.Printf("ID: %d | %-9s | Username: %s | Email: %s\n", u.ID, u.Role, u.Username, u.Email)
	}
	fmt.Println("-------------------------------------")
}
