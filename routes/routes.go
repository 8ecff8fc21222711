package routes

import (
	"github.com/Govind-619/paysync/controllers"
	"github.com/Govind-619/paysync/middleware"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
)

// SetupRouter initializes and returns the Gin router with all routes
func SetupRouter(pc *controllers.PaymentController, jwtSecret string) *gin.Engine {
	router := gin.New()
	router.Use(utils.LoggerMiddleware())
	router.Use(utils.RecoveryMiddleware())
	router.Use(utils.RequestIDMiddleware())
	router.Use(utils.SecurityHeadersMiddleware())

	api := router.Group("/" + utils.APIVersion)
	{
		initPaymentRoutes(api, pc, jwtSecret)
		initAdminPaymentRoutes(api, pc, jwtSecret)
	}

	return router
}

func initPaymentRoutes(api *gin.RouterGroup, pc *controllers.PaymentController, jwtSecret string) {
	payments := api.Group("/payments")

	// The provider authenticates with the body signature, not a JWT
	payments.POST("/webhook", pc.HandleWebhook)

	user := payments.Group("")
	user.Use(middleware.AuthMiddleware(jwtSecret))
	{
		user.POST("", pc.InitiatePayment)
		user.GET("/:id", pc.GetPayment)
		user.POST("/:id/cancel", pc.CancelPayment)
		user.POST("/:id/order", pc.AttachOrder)
	}
}

func initAdminPaymentRoutes(api *gin.RouterGroup, pc *controllers.PaymentController, jwtSecret string) {
	admin := api.Group("/admin/payments")
	admin.Use(middleware.AdminAuthMiddleware(jwtSecret))
	{
		admin.GET("", pc.AdminListPayments)
		admin.GET("/report/excel", pc.AdminReportExcel)
		admin.GET("/report/pdf", pc.AdminReportPDF)
		admin.GET("/:id/audit", pc.AdminPaymentAudit)
		admin.POST("/:id/poll", pc.AdminPollPayment)
	}
}
