package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
)

// User is one account in the users file.
type User struct {
	Username string `toml:"username"`
	Password string `toml:"password"` // hashed after first load
	Role     string `toml:"role"`     // admin, user
	Created  string `toml:"created"`
}

// UserFile is the on-disk structure of users.toml.
type UserFile struct {
	Users []User `toml:"users"`
}

// UserStore holds the accounts loaded from the TOML users file. Plaintext
// passwords found in the file are hashed and written back on load, so an
// operator can rotate a password by pasting a new plaintext value.
type UserStore struct {
	users    map[string]*User
	filePath string
}

// NewUserStore loads the users file, creating it with a default admin
// account when it does not exist yet.
func NewUserStore(filePath string) (*UserStore, error) {
	store := &UserStore{
		users:    make(map[string]*User),
		filePath: filePath,
	}

	if err := store.loadUsers(); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return store, nil
}

func (us *UserStore) loadUsers() error {
	if _, err := os.Stat(us.filePath); os.IsNotExist(err) {
		return us.createDefaultUser()
	}

	var userFile UserFile
	if _, err := toml.DecodeFile(us.filePath, &userFile); err != nil {
		return fmt.Errorf("failed to parse users file: %w", err)
	}

	needsSave := false
	for i := range userFile.Users {
		user := &userFile.Users[i]
		if !isHashedPassword(user.Password) {
			hashed, err := hashPassword(user.Password)
			if err != nil {
				return fmt.Errorf("failed to hash password for user %s: %w", user.Username, err)
			}
			user.Password = hashed
			needsSave = true
		}
		us.users[user.Username] = user
	}

	if needsSave {
		return us.saveUsers(&userFile)
	}
	return nil
}

func (us *UserStore) createDefaultUser() error {
	password, err := generateRandomPassword(12)
	if err != nil {
		return fmt.Errorf("failed to generate default password: %w", err)
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash default password: %w", err)
	}

	defaultUser := User{
		Username: "admin",
		Password: hashed,
		Role:     "admin",
		Created:  time.Now().Format("2006-01-02 15:04:05"),
	}
	us.users["admin"] = &defaultUser

	if err := us.saveUsers(&UserFile{Users: []User{defaultUser}}); err != nil {
		return err
	}

	fmt.Printf("\n"+
		"=====================================\n"+
		"DEFAULT ADMIN USER CREATED\n"+
		"=====================================\n"+
		"Username: admin\n"+
		"Password: %s\n"+
		"=====================================\n"+
		"Please change this password by editing users.toml\n\n", password)
	return nil
}

func (us *UserStore) saveUsers(userFile *UserFile) error {
	file, err := os.Create(us.filePath)
	if err != nil {
		return fmt.Errorf("failed to create users file: %w", err)
	}
	defer file.Close()

	header := `# Tabsync Users Configuration
# This file contains user accounts for authentication.
# Passwords will be automatically hashed when the server starts.
# To add a new user, add a new [[users]] section with username and password.
# To change a password, replace the hashed password with a new plaintext password.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write users file header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(userFile); err != nil {
		return fmt.Errorf("failed to encode users to TOML: %w", err)
	}
	return nil
}

// Authenticate checks the provided credentials against the stored hash.
func (us *UserStore) Authenticate(username, password string) bool {
	user, exists := us.users[username]
	if !exists {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

// GetUser returns a copy of the user without the password hash, or nil.
func (us *UserStore) GetUser(username string) *User {
	user, exists := us.users[username]
	if !exists {
		return nil
	}
	return &User{
		Username: user.Username,
		Role:     user.Role,
		Created:  user.Created,
	}
}

// RegisterUser adds a new account and persists the users file.
func (us *UserStore) RegisterUser(username, password string) error {
	if _, exists := us.users[username]; exists {
		return fmt.Errorf("user already exists")
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	newUser := User{
		Username: username,
		Password: hashed,
		Role:     "user",
		Created:  time.Now().Format("2006-01-02 15:04:05"),
	}
	us.users[username] = &newUser

	var usersList []User
	for _, user := range us.users {
		usersList = append(usersList, *user)
	}
	return us.saveUsers(&UserFile{Users: usersList})
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// isHashedPassword checks for the bcrypt prefix ($2a$, $2b$, $2x$, $2y$).
func isHashedPassword(password string) bool {
	return len(password) >= 4 &&
		password[0] == '$' &&
		password[1] == '2' &&
		(password[2] == 'a' || password[2] == 'b' || password[2] == 'x' || password[2] == 'y') &&
		password[3] == '$'
}

func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes)[:length], nil
}
